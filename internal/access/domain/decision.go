// Package domain defines the access decision model: per request, whether PDF
// output ships without a watermark, and through which paid path.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// AccessType names the path that granted (or denied) watermark-free output.
type AccessType string

const (
	AccessTypeSubscription AccessType = "subscription"
	AccessTypeOneTime      AccessType = "one_time"
	AccessTypeFree         AccessType = "free"
)

// AuthContext is the caller's resolved identity, or anonymous.
type AuthContext struct {
	Anonymous bool
	UserID    snowflake.ID
	Email     string
}

func AnonymousContext() AuthContext {
	return AuthContext{Anonymous: true}
}

// OneTimeClaim is the client's untrusted assertion that a one-time purchase
// funds this request. The purchase id is only verified at consumption time.
type OneTimeClaim struct {
	Present    bool
	PurchaseID string
}

// AccessDecision is computed per request and never persisted.
type AccessDecision struct {
	HasWatermarkFreeAccess bool       `json:"has_watermark_free_access"`
	AccessType             AccessType `json:"access_type"`
	ShouldConsumeCredit    bool       `json:"should_consume_credit"`
	PurchaseID             string     `json:"-"`
}

// Resolver produces an AccessDecision without mutating any state. Safe to
// call any number of times per request.
type Resolver interface {
	Resolve(ctx context.Context, auth AuthContext, claim OneTimeClaim) AccessDecision
}
