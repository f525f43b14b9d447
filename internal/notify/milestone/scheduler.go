// Package milestone fires date-anchored reminders exactly once per entity,
// rule and anchor date.
package milestone

import (
	"context"
	"fmt"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/logger"
	"course-notify/internal/common/metrics"
	"course-notify/internal/common/observability"
	"course-notify/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

type EntitySource interface {
	// Anchored lists entities whose anchor date lies in [from, to].
	Anchored(ctx context.Context, from, to time.Time) ([]models.AnchoredEntity, error)
}

type Suppressor interface {
	Suppressed(ctx context.Context, entity models.AnchoredEntity, rule models.MilestoneRule) (bool, string, error)
}

type FiredStore interface {
	Exists(ctx context.Context, entityID, milestoneType, anchorSnapshot string) (bool, error)
	Record(ctx context.Context, entityID, milestoneType, anchorSnapshot string, firedAt time.Time) error
}

// RuleTable is a fixed set of rules sharing one anchor source.
type RuleTable struct {
	Name       string
	Rules      []models.MilestoneRule
	Source     EntitySource
	Suppressor Suppressor // optional
}

type RunReport struct {
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Evaluated    int       `json:"evaluated"`
	Fired        int       `json:"fired"`
	AlreadyFired int       `json:"alreadyFired"`
	Suppressed   int       `json:"suppressed"`
	Failed       int       `json:"failed"`
	Skipped      bool      `json:"skipped"`
	Errors       []string  `json:"errors,omitempty"`
}

const (
	outcomeFired        = "fired"
	outcomeAlreadyFired = "already_fired"
	outcomeSuppressed   = "suppressed"
	outcomeFailed       = "failed"
)

type Scheduler struct {
	tables     []RuleTable
	fired      FiredStore
	dispatcher Dispatcher
	lock       RunLock
	loc        *time.Location
	logger     logger.Logger
	obs        *observability.Observability
	now        func() time.Time
}

// New builds a scheduler. A nil lock serialises runs in-process only; a nil
// location is UTC.
func New(tables []RuleTable, fired FiredStore, dispatcher Dispatcher, lock RunLock, loc *time.Location, log logger.Logger, obs *observability.Observability) *Scheduler {
	if lock == nil {
		lock = &LocalLock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		tables:     tables,
		fired:      fired,
		dispatcher: dispatcher,
		lock:       lock,
		loc:        loc,
		logger:     logger.ForComponent(log, "milestone"),
		obs:        obs,
		now:        time.Now,
	}
}

// WithClock replaces the scheduler's notion of now.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run evaluates every table once. Failures of single entities are counted in
// the report; the error is reserved for a lock failure or cancellation.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	now := s.now()
	report := &RunReport{StartedAt: now}

	release, acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		metrics.MilestoneRuns.WithLabelValues("error").Inc()
		return nil, apperrors.NewExternalServiceError("run lock", err)
	}
	if !acquired {
		report.Skipped = true
		report.FinishedAt = now
		metrics.MilestoneRuns.WithLabelValues("skipped").Inc()
		s.logger.Info("milestone run already in progress, skipping", nil)
		return report, nil
	}
	defer release()

	ctx, span := s.obs.StartSpan(ctx, "milestone.run")
	defer span.End()

	s.logger.Info("milestone run started", map[string]interface{}{
		"today":  today(now, s.loc).Format(snapshotLayout),
		"tables": len(s.tables),
	})

	for _, table := range s.tables {
		if err := s.runTable(ctx, table, now, report); err != nil {
			report.FinishedAt = s.now()
			metrics.MilestoneRuns.WithLabelValues("cancelled").Inc()
			return report, err
		}
	}
	report.FinishedAt = s.now()

	span.SetAttributes(
		attribute.Int("milestone.fired", report.Fired),
		attribute.Int("milestone.failed", report.Failed),
	)
	outcome := "completed"
	if report.Failed > 0 {
		outcome = "completed_with_failures"
	}
	metrics.MilestoneRuns.WithLabelValues(outcome).Inc()

	s.logger.Info("milestone run finished", map[string]interface{}{
		"evaluated":    report.Evaluated,
		"fired":        report.Fired,
		"alreadyFired": report.AlreadyFired,
		"suppressed":   report.Suppressed,
		"failed":       report.Failed,
		"duration":     report.FinishedAt.Sub(report.StartedAt).String(),
	})
	return report, nil
}

func (s *Scheduler) runTable(ctx context.Context, table RuleTable, now time.Time, report *RunReport) error {
	if len(table.Rules) == 0 {
		return nil
	}
	log := s.logger.WithFields(map[string]interface{}{"table": table.Name})

	from, to := anchorWindow(table.Rules, now, s.loc)
	entities, err := table.Source.Anchored(ctx, from, to)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: load entities: %v", table.Name, err))
		metrics.MilestoneEvaluations.WithLabelValues(table.Name, "source_error").Inc()
		log.Error("could not load anchored entities", map[string]interface{}{"error": err})
		return nil
	}

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			log.Warn("milestone run cancelled", map[string]interface{}{"error": err})
			return err
		}
		report.Evaluated++

		offset := DayOffset(entity.Anchor, now, s.loc)
		for _, rule := range table.Rules {
			if !Fires(offset, rule.OffsetDays) {
				continue
			}

			outcome, err := s.evaluate(ctx, table, entity, rule, offset)
			metrics.MilestoneEvaluations.WithLabelValues(table.Name, outcome).Inc()
			switch outcome {
			case outcomeFired:
				report.Fired++
			case outcomeAlreadyFired:
				report.AlreadyFired++
			case outcomeSuppressed:
				report.Suppressed++
			case outcomeFailed:
				report.Failed++
			}
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s/%s/%s: %v", table.Name, entity.ID, rule.Type, err))
			}
		}
	}
	return nil
}

// evaluate fires rule for entity unless it already fired for this anchor or
// is suppressed. The fired record is written only after a successful send.
func (s *Scheduler) evaluate(ctx context.Context, table RuleTable, entity models.AnchoredEntity, rule models.MilestoneRule, offset int) (string, error) {
	snapshot := Snapshot(entity.Anchor)
	log := s.logger.WithFields(map[string]interface{}{
		"table":          table.Name,
		"entityId":       entity.ID,
		"milestoneType":  rule.Type,
		"anchorSnapshot": snapshot,
	})

	fired, err := s.fired.Exists(ctx, entity.ID, rule.Type, snapshot)
	if err != nil {
		log.Error("could not check fired record", map[string]interface{}{"error": err})
		return outcomeFailed, err
	}
	if fired {
		log.Debug("milestone already fired", nil)
		return outcomeAlreadyFired, nil
	}

	if table.Suppressor != nil {
		suppressed, reason, err := table.Suppressor.Suppressed(ctx, entity, rule)
		if err != nil {
			log.Error("could not evaluate suppression", map[string]interface{}{"error": err})
			return outcomeFailed, err
		}
		if suppressed {
			log.Info("milestone suppressed", map[string]interface{}{"reason": reason})
			return outcomeSuppressed, nil
		}
	}

	res, err := s.dispatcher.Dispatch(ctx, entity, rule, offset)
	if err != nil {
		log.Error("milestone dispatch failed", map[string]interface{}{"error": err})
		return outcomeFailed, err
	}
	if !res.Sent() {
		log.Warn("milestone notification not sent", map[string]interface{}{
			"status":    string(res.Status),
			"errorCode": string(res.ErrorCode),
			"error":     res.Error,
		})
		return outcomeFailed, fmt.Errorf("%s: %s", res.Status, res.Error)
	}

	if err := s.fired.Record(ctx, entity.ID, rule.Type, snapshot, s.now().UTC()); err != nil {
		log.Error("notification sent but fired record not written", map[string]interface{}{
			"deliveryId": res.DeliveryID,
			"error":      err,
		})
		return outcomeFired, err
	}

	log.Info("milestone fired", map[string]interface{}{"deliveryId": res.DeliveryID, "offset": offset})
	return outcomeFired, nil
}

// anchorWindow bounds the anchor dates any rule in rules can match today,
// padded by a day on each side for stores that keep dates in another zone.
func anchorWindow(rules []models.MilestoneRule, now time.Time, loc *time.Location) (time.Time, time.Time) {
	minOffset, maxOffset := rules[0].OffsetDays, rules[0].OffsetDays
	for _, r := range rules[1:] {
		if r.OffsetDays < minOffset {
			minOffset = r.OffsetDays
		}
		if r.OffsetDays > maxOffset {
			maxOffset = r.OffsetDays
		}
	}
	t := today(now, loc)
	return t.AddDate(0, 0, -maxOffset-1), t.AddDate(0, 0, -minOffset+2)
}
