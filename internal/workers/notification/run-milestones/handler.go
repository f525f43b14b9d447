// Package runmilestones is the Zeebe worker that triggers one milestone
// evaluation pass from a BPMN timer process.
package runmilestones

import (
	"context"
	"time"

	"course-notify/internal/common/config"
	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/logger"
	"course-notify/internal/notify/milestone"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "run-milestones"

type Runner interface {
	Run(ctx context.Context) (*milestone.RunReport, error)
}

type Config struct {
	Timeout time.Duration
}

func ConfigFrom(w config.WorkerConfig) *Config {
	c := &Config{Timeout: config.GetDuration(w.Timeout)}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

type Handler struct {
	config       *Config
	runner       Runner
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, runner Runner, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		runner:       runner,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	report, err := h.Execute(ctx)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(report)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return err
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"fired":   report.Fired,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	})
	return nil
}

// Execute runs one pass. A pass skipped because another holds the run lock
// is a successful job.
func (h *Handler) Execute(ctx context.Context) (*milestone.RunReport, error) {
	report, err := h.runner.Run(ctx)
	if err != nil {
		if _, ok := apperrors.AsStandard(err); !ok {
			err = apperrors.NewInternalError(err)
		}
		return nil, err
	}
	return report, nil
}
