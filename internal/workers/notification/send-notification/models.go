package sendnotification

import (
	"course-notify/internal/models"
	"course-notify/internal/notify/delivery"
)

type Input struct {
	TemplateID   string                            `json:"templateId"`
	RecipientIDs []string                          `json:"recipientIds"`
	AccountID    string                            `json:"accountId,omitempty"`
	Refs         models.EntityRefs                 `json:"refs,omitempty"`
	Variables    map[string]map[string]interface{} `json:"variables,omitempty"`
}

type Output struct {
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Results []delivery.Result `json:"results"`
}
