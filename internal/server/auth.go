package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserView struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	SubscriptionPlan      string     `json:"subscription_plan"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionPeriodEnd *time.Time `json:"subscription_period_end,omitempty"`
}

func userView(u *userdomain.User) UserView {
	return UserView{
		ID:                    u.ID.String(),
		Email:                 u.Email,
		Role:                  u.Role,
		SubscriptionPlan:      string(u.SubscriptionPlan),
		SubscriptionStatus:    string(u.SubscriptionStatus),
		SubscriptionPeriodEnd: u.SubscriptionPeriodEnd,
	}
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.Register(c.Request.Context(), userdomain.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.startSession(c, user); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userView(user))
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.Authenticate(c.Request.Context(), userdomain.AuthenticateRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.startSession(c, user); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, userView(user))
}

func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.cookies.ReadToken(c); ok {
		_ = s.sessions.Revoke(c.Request.Context(), token)
	}
	s.cookies.Clear(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

func (s *Server) startSession(c *gin.Context, user *userdomain.User) error {
	rawToken, sess, err := s.sessions.Create(
		c.Request.Context(),
		user.ID,
		c.Request.UserAgent(),
		c.ClientIP(),
	)
	if err != nil {
		return err
	}
	s.cookies.Set(c, rawToken, sess.ExpiresAt)
	return nil
}
