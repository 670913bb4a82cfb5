// internal/domain/payment/provider.go
package payment

import "context"

// Payment intent statuses as reported by the provider.
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// Metadata type tags distinguishing what a payment intent funds.
const (
	IntentTypeOrder  = "ORDER"
	IntentTypeCoupon = "COUPON_PAYMENT"
)

// Intent is the provider-side object representing an in-progress charge.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`

	LastPaymentError *IntentError `json:"last_payment_error,omitempty"`
}

// IntentError carries the provider's description of a failed charge attempt.
type IntentError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsReusable reports whether an intent is still waiting on the customer and
// can be handed back to a retrying checkout instead of creating a duplicate.
func (i *Intent) IsReusable() bool {
	switch i.Status {
	case StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction:
		return true
	}
	return false
}

// CreateIntentParams describes a new payment intent.
type CreateIntentParams struct {
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
}

// Provider is the external payment processor contract. The orchestrator and
// reconciler depend on this interface so tests can substitute fakes.
type Provider interface {
	// CreateIntent creates a payment intent. The idempotency key lets the
	// provider collapse identical concurrent creation calls onto one intent.
	CreateIntent(ctx context.Context, params CreateIntentParams, idempotencyKey string) (*Intent, error)

	// RetrieveIntent fetches the current state of an existing intent.
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
