package delivery

import apperrors "course-notify/internal/common/errors"

type Status string

const (
	StatusSent            Status = "sent"
	StatusFailed          Status = "failed"
	StatusCreditExhausted Status = "credit_exhausted"
	StatusUnreachable     Status = "unreachable"
)

// Result is the outcome for one recipient.
type Result struct {
	RecipientID         string              `json:"recipientId"`
	Status              Status              `json:"status"`
	DeliveryID          string              `json:"deliveryId,omitempty"`
	ProviderReference   string              `json:"providerReference,omitempty"`
	DebitTransactionID  string              `json:"debitTransactionId,omitempty"`
	RefundTransactionID string              `json:"refundTransactionId,omitempty"`
	ErrorCode           apperrors.ErrorCode `json:"errorCode,omitempty"`
	Error               string              `json:"error,omitempty"`
}

func (r Result) Sent() bool { return r.Status == StatusSent }

// BulkResult lists per-recipient outcomes in input order. Credit-exhausted
// and unreachable recipients count as failed.
type BulkResult struct {
	Sent         int      `json:"sent"`
	Failed       int      `json:"failed"`
	PerRecipient []Result `json:"perRecipient"`
}

func failure(recipientID string, status Status, err error) Result {
	return Result{
		RecipientID: recipientID,
		Status:      status,
		ErrorCode:   apperrors.CodeOf(err),
		Error:       err.Error(),
	}
}
