// Package payment defines the provider-neutral contract for push payments:
// initiating a push, parsing asynchronous results, and querying status.
package payment

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedPayload is returned when a callback or timeout body cannot be
// parsed.
var ErrMalformedPayload = errors.New("payment: malformed payload")

// Provider is a push-payment rail.
type Provider interface {
	// Name identifies the provider on persisted transactions.
	Name() string

	// Validate checks the phone number and amount and returns the normalized
	// phone. The returned error is a FieldErrors describing each problem.
	Validate(phone string, amount float64) (string, error)

	// Push asks the customer's handset to confirm a payment.
	Push(ctx context.Context, req PushRequest) (*PushResponse, error)

	// QueryStatus asks the provider for the current result of a push.
	QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error)

	// ParseCallback decodes an asynchronous result notification.
	ParseCallback(body []byte) (*CallbackResult, error)

	// ParseTimeout decodes a timeout notification and returns the checkout
	// request id it refers to.
	ParseTimeout(body []byte) (string, error)
}

// PushRequest is the input to Provider.Push. Amount is in whole shillings.
type PushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	Narrative        string
}

// PushResponse is the provider's synchronous answer to a push.
type PushResponse struct {
	Accepted          bool
	CheckoutRequestID string
	MerchantRequestID string
	ResponseCode      string
	CustomerMessage   string
	// ErrorMessage is set when Accepted is false.
	ErrorMessage string
}

// CallbackResult is a parsed asynchronous payment result.
type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string

	// Present on success only.
	Receipt         string
	TransactionDate string
	Amount          int64
	PhoneNumber     string
}

// Succeeded reports whether the provider completed the payment.
func (c *CallbackResult) Succeeded() bool {
	return c.ResultCode == 0
}

// StatusResult is the provider's answer to a status query.
type StatusResult struct {
	ResultCode string
	ResultDesc string
	QueriedAt  time.Time
}

// Ack is the acknowledgement returned to the provider for a callback or
// timeout notification.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	// Accepted tells the provider the notification was handled.
	Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}
	// Failed tells the provider the notification could not be processed.
	Failed = Ack{ResultCode: 1, ResultDesc: "Failed"}
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is an itemized validation failure.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "payment: invalid request"
	}
	msg := "payment: " + e[0].Field + ": " + e[0].Message
	if len(e) > 1 {
		msg += " (and more)"
	}
	return msg
}
