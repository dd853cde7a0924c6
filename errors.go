package learngate

import (
	"errors"
	"fmt"

	"github.com/xraph/learngate/entitlement"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("learngate: not found")
	ErrInvalidInput = errors.New("learngate: invalid input")
	ErrUnauthorized = errors.New("learngate: unauthorized")
	ErrForbidden    = errors.New("learngate: forbidden")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("learngate: subscription not found")
	ErrSubscriptionExists   = errors.New("learngate: subscription already exists")

	// Quota errors
	ErrQuotaExceeded    = errors.New("learngate: quota exceeded")
	ErrUsageCheckFailed = errors.New("learngate: usage check failed")

	// Payment errors
	ErrTransactionNotFound = errors.New("learngate: transaction not found")
	ErrTransactionExists   = errors.New("learngate: transaction already exists")
	ErrTransactionSettled  = errors.New("learngate: transaction already settled")
	ErrPaymentRejected     = errors.New("learngate: payment rejected")
	ErrProviderUnavailable = errors.New("learngate: payment provider unavailable")

	// Generation errors
	ErrGeneratorNotConfigured = errors.New("learngate: generator not configured")

	// Store errors
	ErrStoreNotReady   = errors.New("learngate: store not ready")
	ErrStoreClosed     = errors.New("learngate: store is closed")
	ErrMigrationFailed = errors.New("learngate: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("learngate: validation failed for %s: %s", e.Field, e.Message)
}

// ValidationErrors is an itemized list of validation failures. It unwraps to
// ErrInvalidInput.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "learngate: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("learngate: %d validation errors occurred", len(e.Errors))
}

func (e *ValidationErrors) Unwrap() error { return ErrInvalidInput }

// Add appends a failure for field.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e *ValidationErrors) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Messages returns each failure message in order.
func (e *ValidationErrors) Messages() []string {
	out := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		out[i] = v.Message
	}
	return out
}

// QuotaExceededError carries the denying decision. It unwraps to
// ErrQuotaExceeded.
type QuotaExceededError struct {
	Decision *entitlement.Decision
}

func (e *QuotaExceededError) Error() string {
	if e.Decision == nil {
		return ErrQuotaExceeded.Error()
	}
	return fmt.Sprintf("learngate: quota exceeded for %s (%d/%d %s)",
		e.Decision.Feature, e.Decision.Used, e.Decision.Limit, e.Decision.Period)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsQuotaError returns true if the error is related to quota/limits.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrProviderUnavailable)
}
