package domain

import "context"

type Repository interface {
	// InsertEvent persists the event record. A duplicate
	// (provider, provider_event_id) pair surfaces as a duplicate key error.
	InsertEvent(ctx context.Context, record *EventRecord) error
}
