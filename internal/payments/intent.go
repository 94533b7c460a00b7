// Package payments wraps the external payment processor: intent creation,
// intent retrieval for server-side re-verification, and webhook event
// construction with signature checking.
package payments

import (
	"github.com/cartloom/cartloom-golang/internal/money"
)

// IntentStatus is the processor-side lifecycle of a payment attempt.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusFailed                IntentStatus = "failed"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// Intent mirrors the gateway's payment_intent object. Amount is in minor
// units exactly as the gateway reports it.
type Intent struct {
	ID           string            `json:"id"`
	Status       IntentStatus      `json:"status"`
	AmountCents  money.Cents       `json:"amount"`
	Currency     string            `json:"currency"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}
