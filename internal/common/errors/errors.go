// Package errors provides the standardized error taxonomy of the notification
// engine and its conversion to BPMN errors for workflow-driven sends.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Ledger errors
const (
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrCodeRefundInvalid       ErrorCode = "REFUND_INVALID"
	ErrCodeRefundFailed        ErrorCode = "REFUND_FAILED"
)

// Delivery errors
const (
	ErrCodeTransportFailure     ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInactive     ErrorCode = "TEMPLATE_INACTIVE"
	ErrCodeRecipientUnreachable ErrorCode = "RECIPIENT_UNREACHABLE"
	ErrCodeUnresolvedContext    ErrorCode = "UNRESOLVED_CONTEXT"
	ErrCodeCreditExhausted      ErrorCode = "CREDIT_EXHAUSTED"
)

// Infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so callers can write
// errors.Is(err, errors.ErrInsufficientBalance).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after attaching a metadata key.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons. Only Code is significant.
var (
	ErrInsufficientBalance  = &StandardError{Code: ErrCodeInsufficientBalance}
	ErrAccountNotFound      = &StandardError{Code: ErrCodeAccountNotFound}
	ErrTransportFailure     = &StandardError{Code: ErrCodeTransportFailure}
	ErrTemplateNotFound     = &StandardError{Code: ErrCodeTemplateNotFound}
	ErrTemplateInactive     = &StandardError{Code: ErrCodeTemplateInactive}
	ErrRecipientUnreachable = &StandardError{Code: ErrCodeRecipientUnreachable}
	ErrUnresolvedContext    = &StandardError{Code: ErrCodeUnresolvedContext}
	ErrRefundInvalid        = &StandardError{Code: ErrCodeRefundInvalid}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInsufficientBalanceError is returned by the ledger when a debit would
// take the balance below zero. Not retryable without a top-up.
func NewInsufficientBalanceError(accountID string, balance, requested int64) *StandardError {
	return newError(ErrCodeInsufficientBalance, "Insufficient credit balance",
		fmt.Sprintf("account %s has %d, requested %d", accountID, balance, requested), false, nil).
		WithMetadata("accountId", accountID)
}

func NewAccountNotFoundError(accountID string) *StandardError {
	return newError(ErrCodeAccountNotFound, "Credit account not found", accountID, false, nil)
}

func NewInvalidAmountError(amount int64) *StandardError {
	return newError(ErrCodeInvalidAmount, "Amount must be positive", fmt.Sprintf("amount=%d", amount), false, nil)
}

func NewRefundInvalidError(details string) *StandardError {
	return newError(ErrCodeRefundInvalid, "Refund does not reference a debit of this account", details, false, nil)
}

// NewRefundFailedError marks a compensating write that could not be stored.
// This is the one state that needs manual reconciliation.
func NewRefundFailedError(debitTxID string, err error) *StandardError {
	return newError(ErrCodeRefundFailed, "Compensating refund failed", errDetails(err), true, err).
		WithMetadata("debitTransactionId", debitTxID)
}

func NewTransportFailureError(channel string, err error) *StandardError {
	return newError(ErrCodeTransportFailure, fmt.Sprintf("Channel '%s' transport failed", channel), errDetails(err), true, err)
}

func NewTemplateNotFoundError(templateID string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Notification template not found", templateID, false, nil)
}

func NewTemplateInactiveError(templateID string) *StandardError {
	return newError(ErrCodeTemplateInactive, "Notification template is inactive", templateID, false, nil)
}

func NewRecipientUnreachableError(recipientID, channel, details string) *StandardError {
	return newError(ErrCodeRecipientUnreachable, fmt.Sprintf("Recipient has no usable %s address", channel), details, false, nil).
		WithMetadata("recipientId", recipientID)
}

func NewUnresolvedContextError(section, id string, err error) *StandardError {
	return newError(ErrCodeUnresolvedContext, fmt.Sprintf("Required %s could not be loaded", section), id, false, err)
}

func NewCreditExhaustedError(accountID string, err error) *StandardError {
	return newError(ErrCodeCreditExhausted, "Credit exhausted before send", accountID, false, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection failed", errDetails(err), true, err)
}

func NewQueryExecutionFailedError(query string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, fmt.Sprintf("Query '%s' failed", query), errDetails(err), true, err)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert failed", errDetails(err), true, err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' failed", service), errDetails(err), true, err)
}

func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), false, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a workflow job.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTransportFailure, ErrCodeRefundFailed:
		return 1

	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// Internal codes are used verbatim as BPMN error codes.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts a StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal when there is none. nil yields "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "BALANCE") || strings.Contains(codeStr, "ACCOUNT") ||
		strings.Contains(codeStr, "REFUND") || strings.Contains(codeStr, "AMOUNT") ||
		strings.Contains(codeStr, "CREDIT"):
		return "LEDGER"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "CONTEXT"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "TRANSPORT") || strings.Contains(codeStr, "RECIPIENT"):
		return "DELIVERY"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL"):
		return "EXTERNAL"
	default:
		return "OTHER"
	}
}
