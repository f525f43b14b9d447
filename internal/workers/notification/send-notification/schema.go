package sendnotification

import "course-notify/internal/common/validation"

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["templateId", "recipientIds"],
	"properties": {
		"templateId": {"type": "string", "minLength": 1, "maxLength": 128},
		"recipientIds": {
			"type": "array",
			"minItems": 1,
			"maxItems": 1000,
			"items": {"type": "string", "minLength": 1}
		},
		"accountId": {"type": "string"},
		"refs": {
			"type": "object",
			"properties": {
				"studentId": {"type": "string"},
				"instructorId": {"type": "string"},
				"courseId": {"type": "string"},
				"scheduleId": {"type": "string"},
				"enrollmentId": {"type": "string"},
				"appointmentId": {"type": "string"}
			},
			"additionalProperties": false
		},
		"variables": {
			"type": "object",
			"additionalProperties": {"type": "object"}
		}
	}
}`)
