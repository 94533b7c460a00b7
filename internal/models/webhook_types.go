package models

import "time"

// WebhookEvent is the model for the 'webhook_events' table: one row per
// gateway event id ever accepted. The primary key on event_id is what makes
// replayed deliveries no-ops.
type WebhookEvent struct {
	EventID         string    `json:"eventId" db:"event_id"`
	EventType       string    `json:"eventType" db:"event_type"`
	PaymentIntentID string    `json:"paymentIntentId" db:"payment_intent_id"`
	ProcessedAt     time.Time `json:"processedAt" db:"processed_at"`
}
