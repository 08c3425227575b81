package cache

import (
	"time"

	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
)

// Short TTL: a webhook-driven plan change must become visible quickly, and
// the expiry override is recomputed on read anyway.
const defaultUserRecordTTL = 30 * time.Second

// AccessRecordCache stores hot-path user lookups for access resolution.
type AccessRecordCache interface {
	GetUser(email string) (*userdomain.User, bool)
	SetUser(email string, user *userdomain.User)
	Invalidate(email string)
}

type accessRecordCache struct {
	users Cache[string, *userdomain.User]
	ttl   time.Duration
}

// NewAccessRecordCache returns an in-memory cache tuned for access checks.
func NewAccessRecordCache() AccessRecordCache {
	return &accessRecordCache{
		users: NewTTLCache[string, *userdomain.User](),
		ttl:   defaultUserRecordTTL,
	}
}

func (c *accessRecordCache) GetUser(email string) (*userdomain.User, bool) {
	return c.users.Get(userdomain.NormalizeEmail(email))
}

func (c *accessRecordCache) SetUser(email string, user *userdomain.User) {
	if user == nil {
		return
	}
	c.users.Set(userdomain.NormalizeEmail(email), user, c.ttl)
}

func (c *accessRecordCache) Invalidate(email string) {
	c.users.Delete(userdomain.NormalizeEmail(email))
}
