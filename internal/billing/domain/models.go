package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one ingested payment provider event. The unique index on
// (provider, provider_event_id) makes webhook delivery idempotent.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"column:id;primaryKey"`
	Provider        string         `gorm:"column:provider;type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	ProviderEventID string         `gorm:"column:provider_event_id;type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	EventType       string         `gorm:"column:event_type;type:text;not null"`
	RawPayload      datatypes.JSON `gorm:"column:raw_payload"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

// WebhookEvent is the provider-agnostic event envelope.
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	Email            string `json:"email"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Mode             string `json:"mode"`
	AmountTotal      int64  `json:"amount_total"`
	Currency         string `json:"currency"`
}

const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventCheckoutCompleted     = "checkout.completed"
)

const (
	CheckoutModeSubscription = "subscription"
	CheckoutModeOneTime      = "one_time"
)
