// Package domain contains persistence models for one-time purchase credits.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OneTimePurchase is minted by the billing webhook when a one-time checkout
// completes. Its presence is what makes a client-held purchase id real.
type OneTimePurchase struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PurchaseID string       `gorm:"type:text;not null;uniqueIndex"`
	Email      string       `gorm:"type:text"`
	AmountCent int64        `gorm:"not null;default:0"`
	Currency   string       `gorm:"type:text;not null;default:usd"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OneTimePurchase) TableName() string { return "one_time_purchases" }

// ConsumedOneTimePayment records that a purchase id funded one watermark-free
// operation. Rows are written once and never updated or deleted.
type ConsumedOneTimePayment struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	PurchaseID    string       `gorm:"type:text;not null;uniqueIndex"`
	OperationType string       `gorm:"type:text;not null"`
	ConsumedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ConsumedOneTimePayment) TableName() string { return "consumed_one_time_payments" }
