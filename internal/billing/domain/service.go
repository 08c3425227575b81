package domain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidProvider       = errors.New("billing: invalid provider")
	ErrInvalidPayload        = errors.New("billing: invalid payload")
	ErrInvalidSignature      = errors.New("billing: invalid signature")
	ErrEventAlreadyProcessed = errors.New("billing: event already processed")
)

type Service interface {
	// IngestWebhook verifies, dedupes and applies one provider event.
	// Redelivery of a processed event returns ErrEventAlreadyProcessed.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
