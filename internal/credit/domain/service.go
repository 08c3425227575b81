package domain

import (
	"context"
	"errors"
)

var ErrInvalidPurchaseID = errors.New("invalid purchase id")

// ConsumptionStatus is the outcome of a credit consumption attempt.
type ConsumptionStatus string

const (
	// StatusConsumed is the first (and only) successful use.
	StatusConsumed ConsumptionStatus = "consumed"
	// StatusAlreadyConsumed means a retry or a concurrent duplicate lost the
	// insert race. Not an error.
	StatusAlreadyConsumed ConsumptionStatus = "already_consumed"
	// StatusUnknownPurchase means the id was never minted by a completed
	// checkout.
	StatusUnknownPurchase ConsumptionStatus = "unknown_purchase"
	// StatusFailed covers storage failures; callers treat it as non-fatal.
	StatusFailed ConsumptionStatus = "failed"
)

type ConsumptionResult struct {
	Status ConsumptionStatus `json:"status"`
}

type Service interface {
	// Consume records that purchaseID funded one operation. Called only
	// after the operation succeeded. Idempotent per purchase id.
	Consume(ctx context.Context, purchaseID, operationType string) ConsumptionResult

	// PurchaseExists reports whether purchaseID was minted by a completed
	// one-time checkout.
	PurchaseExists(ctx context.Context, purchaseID string) (bool, error)

	// MintPurchase records a completed one-time checkout and returns the
	// purchase id the client will present later.
	MintPurchase(ctx context.Context, email string, amountCent int64, currency string) (*OneTimePurchase, error)
}
