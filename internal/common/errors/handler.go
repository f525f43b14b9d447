package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler writes to.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler reports a failed job back to the broker. Retryable codes fail
// the job so the broker redelivers it after a backoff; everything else is
// thrown as a BPMN error the process can catch by code.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := normalizeError(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	vars := variablesJSON(bpmnErr)

	fields := map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          bpmnErr.Code,
		"category":           GetErrorCategory(stdErr.Code),
		"message":            bpmnErr.Message,
		"details":            stdErr.Details,
	}

	if bpmnErr.Retries > 0 && job.Retries > 0 {
		retries := retriesFor(job, bpmnErr.Retries)
		fields["retriesLeft"] = retries
		h.logger.Warn("job failed, broker will retry", fields)

		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retries).
			ErrorMessage(bpmnErr.Message).
			RetryBackoff(retryBackoff(stdErr.Code))
		send := func() error { _, err := cmd.Send(ctx); return err }
		if withVars, err := cmd.VariablesFromString(vars); vars != "" && err == nil {
			send = func() error { _, err := withVars.Send(ctx); return err }
		}
		h.report(job, "fail-job", send())
		return
	}

	h.logger.Error("job failed, throwing BPMN error", fields)

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)
	send := func() error { _, err := cmd.Send(ctx); return err }
	if withVars, err := cmd.VariablesFromString(vars); vars != "" && err == nil {
		send = func() error { _, err := withVars.Send(ctx); return err }
	}
	h.report(job, "throw-error", send())
}

func (h *ErrorHandler) report(job entities.Job, command string, err error) {
	if err != nil {
		h.logger.Error(command+" command rejected", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

func normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// retriesFor counts the job's remaining retries down, capped at maxRetries.
func retriesFor(job entities.Job, maxRetries int) int32 {
	remaining := job.Retries - 1
	if remaining > int32(maxRetries) {
		remaining = int32(maxRetries)
	}
	return remaining
}

// retryBackoff spaces redeliveries: provider outages clear slower than a
// dropped database connection.
func retryBackoff(code ErrorCode) time.Duration {
	switch GetErrorCategory(code) {
	case "DATABASE":
		return 5 * time.Second
	case "DELIVERY", "EXTERNAL":
		return 30 * time.Second
	default:
		return 15 * time.Second
	}
}

func variablesJSON(bpmnErr *BPMNError) string {
	raw, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return ""
	}
	return string(raw)
}
