package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 30 * 24 * time.Hour
)

var ErrSessionNotFound = errors.New("session: not found")

// Session is a persisted login session. Only the token hash is stored.
type Session struct {
	ID         snowflake.ID `gorm:"column:id;primaryKey"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	UserAgent  string       `gorm:"column:user_agent;type:text"`
	IPAddress  string       `gorm:"column:ip_address;type:text"`
	ExpiresAt  time.Time    `gorm:"column:expires_at;not null"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt time.Time    `gorm:"column:last_seen_at;not null"`
}

func (Session) TableName() string { return "sessions" }

// Store persists sessions in the database.
type Store struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewStore(db *gorm.DB, genID *snowflake.Node) *Store {
	return &Store{db: db, genID: genID}
}

// Create issues a new session for the user and returns the raw token
// to be set as the cookie value.
func (s *Store) Create(ctx context.Context, userID snowflake.ID, userAgent, ipAddress string) (string, *Session, error) {
	rawToken, err := newSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:         s.genID.Generate(),
		UserID:     userID,
		TokenHash:  hashToken(rawToken),
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  now.Add(sessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, err
	}
	return rawToken, session, nil
}

// Resolve returns the live session for a raw cookie token. Expired
// sessions are treated as missing.
func (s *Store) Resolve(ctx context.Context, rawToken string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).
		Where("token_hash = ?", hashToken(rawToken)).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Touch bumps last_seen_at, best-effort.
func (s *Store) Touch(ctx context.Context, id snowflake.ID) {
	_ = s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now().UTC()).Error
}

// Revoke deletes the session backing a raw cookie token.
func (s *Store) Revoke(ctx context.Context, rawToken string) error {
	return s.db.WithContext(ctx).
		Where("token_hash = ?", hashToken(rawToken)).
		Delete(&Session{}).Error
}

// DeleteExpired prunes sessions whose expiry has passed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	return res.RowsAffected, res.Error
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
