// Package domain contains persistence models for user accounts and their
// subscription state.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan enumerates subscription tiers.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// SubscriptionStatus mirrors the payment provider's lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// User captures an account and the subscription fields the access resolver
// reads. Plan and status are mutated only by the billing webhook flow.
type User struct {
	ID                    snowflake.ID       `gorm:"primaryKey"`
	Email                 string             `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash          string             `gorm:"type:text;not null"`
	Role                  string             `gorm:"type:text;not null;default:user"`
	SubscriptionPlan      Plan               `gorm:"type:text;not null;default:free"`
	SubscriptionStatus    SubscriptionStatus `gorm:"type:text;not null;default:inactive"`
	SubscriptionPeriodEnd *time.Time         `gorm:""`
	CreatedAt             time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// EffectivePlan applies the expiry override: once the period end has passed
// the stored plan no longer grants anything. Recomputed on every call and
// never persisted, so a stale row can't keep paid access alive.
func (u User) EffectivePlan(now time.Time) Plan {
	if u.SubscriptionPeriodEnd != nil && now.After(*u.SubscriptionPeriodEnd) {
		return PlanFree
	}
	plan := Plan(strings.ToLower(strings.TrimSpace(string(u.SubscriptionPlan))))
	switch plan {
	case PlanMonthly, PlanYearly:
		return plan
	default:
		return PlanFree
	}
}

// IsPaid reports whether the effective plan at now grants watermark-free
// output.
func (u User) IsPaid(now time.Time) bool {
	plan := u.EffectivePlan(now)
	return plan == PlanMonthly || plan == PlanYearly
}

// NormalizeEmail canonicalizes an address for lookups and unique storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
