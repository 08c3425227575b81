package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/papermill/internal/config"
)

const (
	keyPDFOpClient   = "pdf:op:client:%s"
	keyPDFOpEndpoint = "pdf:op:endpoint:%s"
)

// AnonymousLimiter throttles unauthenticated PDF operations per client IP
// plus a shared per-endpoint ceiling. Disabled limiters allow everything.
type AnonymousLimiter struct {
	enabled bool

	bucket *TokenBucket

	anonRate      float64
	anonBurst     int
	endpointRate  float64
	endpointBurst int
}

func NewAnonymousLimiter(cfg config.Config) (*AnonymousLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.AnonRate <= 0 || limitCfg.AnonBurst <= 0 {
		return nil, errors.New("anonymous rate limit must be positive")
	}
	if limitCfg.EndpointRate <= 0 || limitCfg.EndpointBurst <= 0 {
		return nil, errors.New("endpoint rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &AnonymousLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		anonRate:      limitCfg.AnonRate,
		anonBurst:     limitCfg.AnonBurst,
		endpointRate:  limitCfg.EndpointRate,
		endpointBurst: limitCfg.EndpointBurst,
	}, nil
}

func (l *AnonymousLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *AnonymousLimiter) AllowClient(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPDFOpClient, strings.TrimSpace(clientIP)), l.anonRate, l.anonBurst)
}

func (l *AnonymousLimiter) AllowEndpoint(ctx context.Context, operation string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPDFOpEndpoint, strings.TrimSpace(operation)), l.endpointRate, l.endpointBurst)
}
