package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short")
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SubscriptionUpdate is applied by the billing webhook flow.
type SubscriptionUpdate struct {
	UserID    snowflake.ID
	Plan      Plan
	Status    SubscriptionStatus
	PeriodEnd *time.Time
	UpdatedAt time.Time
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Authenticate(ctx context.Context, req AuthenticateRequest) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ApplySubscriptionUpdate(ctx context.Context, update SubscriptionUpdate) error
}
