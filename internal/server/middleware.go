package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	"github.com/smallbiznis/papermill/internal/observability/obscontext"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
)

const contextUserKey = "auth_user"

// SessionContext resolves the session cookie into the request's user, when
// one is present. Anonymous requests pass through untouched; the PDF
// endpoints serve both.
func (s *Server) SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := s.userFromSession(c); ok {
			c.Set(contextUserKey, user)
			ctx := obscontext.WithUserID(c.Request.Context(), user.ID.String())
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// AuthRequired rejects requests without a live session.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := s.userFromSession(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserKey, user)
		ctx := obscontext.WithUserID(c.Request.Context(), user.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) userFromSession(c *gin.Context) (*userdomain.User, bool) {
	token, ok := s.cookies.ReadToken(c)
	if !ok {
		return nil, false
	}
	sess, err := s.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		return nil, false
	}
	user, err := s.userSvc.GetByID(c.Request.Context(), sess.UserID)
	if err != nil {
		return nil, false
	}
	s.sessions.Touch(c.Request.Context(), sess.ID)
	return user, true
}

func currentUser(c *gin.Context) (*userdomain.User, bool) {
	raw, exists := c.Get(contextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := raw.(*userdomain.User)
	return user, ok && user != nil
}

func (s *Server) authContext(c *gin.Context) accessdomain.AuthContext {
	user, ok := currentUser(c)
	if !ok {
		return accessdomain.AnonymousContext()
	}
	return accessdomain.AuthContext{
		UserID: user.ID,
		Email:  user.Email,
	}
}

// authorize gates a route on the RBAC policy for the session user.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actor := fmt.Sprintf("user:%s", user.ID.String())
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// AnonymousRateLimit throttles unauthenticated PDF operations. Logged-in
// users are exempt; per-client and per-endpoint buckets both apply.
func (s *Server) AnonymousRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.anonLimiter.Enabled() {
			c.Next()
			return
		}
		if _, ok := currentUser(c); ok {
			c.Next()
			return
		}

		res, err := s.anonLimiter.AllowClient(c.Request.Context(), c.ClientIP())
		if err == nil && res.Allowed {
			res, err = s.anonLimiter.AllowEndpoint(c.Request.Context(), c.FullPath())
		}
		if err != nil {
			// Redis being down must not take the product down with it.
			c.Next()
			return
		}
		s.obsMetrics.RecordRateLimit(res.Allowed)
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter/time.Second)+1))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
