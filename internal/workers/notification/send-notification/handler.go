// Package sendnotification is the Zeebe worker that sends one template to a
// recipient list on behalf of a BPMN process.
package sendnotification

import (
	"context"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/logger"
	"course-notify/internal/models"
	"course-notify/internal/notify/delivery"
	"course-notify/internal/notify/template"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "send-notification"

type BulkSender interface {
	SendBulk(ctx context.Context, templateID string, recipientIDs []string, vars template.VariableContext, accountID string) (*delivery.BulkResult, error)
}

type ContextLoader interface {
	Load(ctx context.Context, refs models.EntityRefs, extra map[string]map[string]interface{}) (template.VariableContext, error)
}

type Handler struct {
	config       *Config
	sender       BulkSender
	loader       ContextLoader
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, sender BulkSender, loader ContextLoader, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sender:       sender,
		loader:       loader,
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

	input, err := decodeInput(job)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	return h.completeJob(ctx, client, job, output)
}

// Execute loads the variable context and fans the template out. Recipient
// failures are part of the output; only context and template problems fail
// the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	vars, err := h.loader.Load(ctx, input.Refs, input.Variables)
	if err != nil {
		return nil, err
	}

	bulk, err := h.sender.SendBulk(ctx, input.TemplateID, input.RecipientIDs, vars, input.AccountID)
	if err != nil {
		return nil, err
	}

	return &Output{Sent: bulk.Sent, Failed: bulk.Failed, Results: bulk.PerRecipient}, nil
}

func decodeInput(job entities.Job) (*Input, error) {
	raw, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewValidationFailedError("variables are not a JSON object: " + err.Error())
	}
	if result := inputSchema.Validate(raw); !result.Valid {
		return nil, apperrors.NewValidationFailedError(result.Summary())
	}

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, apperrors.NewValidationFailedError(err.Error())
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return err
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey": job.Key,
		"sent":   output.Sent,
		"failed": output.Failed,
	})
	return nil
}
