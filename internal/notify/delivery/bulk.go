package delivery

import (
	"context"
	"sync"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/metrics"
	"course-notify/internal/notify/template"

	"golang.org/x/time/rate"
)

// SendBulk delivers templateID to every recipient through a bounded worker
// pool. One recipient's failure never stops the others, and the call returns
// only after every dispatch has finished.
func (o *Orchestrator) SendBulk(ctx context.Context, templateID string, recipientIDs []string, vars template.VariableContext, accountID string) (*BulkResult, error) {
	s, err := o.prepare(ctx, templateID, vars, accountID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(recipientIDs))

	var limiter *rate.Limiter
	if o.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.opts.RatePerSecond), 1)
	}

	workers := o.opts.Workers
	if workers > len(recipientIDs) {
		workers = len(recipientIDs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.dispatch(ctx, s, recipientIDs[i], limiter)
			}
		}()
	}

	for i := range recipientIDs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	bulk := &BulkResult{PerRecipient: results}
	for _, r := range results {
		if r.Sent() {
			bulk.Sent++
		} else {
			bulk.Failed++
		}
	}

	o.logger.Info("bulk send finished", map[string]interface{}{
		"templateId": templateID,
		"recipients": len(recipientIDs),
		"sent":       bulk.Sent,
		"failed":     bulk.Failed,
	})
	return bulk, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, s *send, recipientID string, limiter *rate.Limiter) Result {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return failure(recipientID, StatusFailed, apperrors.NewInternalError(err))
		}
	}

	metrics.BulkInFlight.Inc()
	defer metrics.BulkInFlight.Dec()
	return o.deliver(ctx, s, recipientID)
}
