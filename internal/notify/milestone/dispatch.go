package milestone

import (
	"context"

	"course-notify/internal/models"
	"course-notify/internal/notify/delivery"
	"course-notify/internal/notify/template"
)

// Dispatcher sends the notification for one due (entity, rule) pair.
type Dispatcher interface {
	Dispatch(ctx context.Context, entity models.AnchoredEntity, rule models.MilestoneRule, offset int) (*delivery.Result, error)
}

type Sender interface {
	SendOne(ctx context.Context, templateID, recipientID string, vars template.VariableContext, accountID string) (*delivery.Result, error)
}

type ContextLoader interface {
	Load(ctx context.Context, refs models.EntityRefs, extra map[string]map[string]interface{}) (template.VariableContext, error)
}

// OrchestratorDispatcher builds the entity's variable context, adds a
// "milestone" section and sends the rule's template.
type OrchestratorDispatcher struct {
	sender Sender
	loader ContextLoader
}

func NewDispatcher(sender Sender, loader ContextLoader) *OrchestratorDispatcher {
	return &OrchestratorDispatcher{sender: sender, loader: loader}
}

func (d *OrchestratorDispatcher) Dispatch(ctx context.Context, entity models.AnchoredEntity, rule models.MilestoneRule, offset int) (*delivery.Result, error) {
	vars, err := d.loader.Load(ctx, entity.Refs, map[string]map[string]interface{}{
		"milestone": {
			"type":       rule.Type,
			"offsetDays": rule.OffsetDays,
			"anchorDate": Snapshot(entity.Anchor),
			"daysUntil":  offset,
		},
	})
	if err != nil {
		return nil, err
	}
	return d.sender.SendOne(ctx, rule.TemplateID, entity.RecipientID, vars, entity.AccountID)
}
