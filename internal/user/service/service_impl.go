package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/papermill/internal/clock"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	pkgdb "github.com/smallbiznis/papermill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  userdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  userdomain.Repository
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Register(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.User, error) {
	email := userdomain.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, userdomain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, userdomain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:                 s.genID.Generate(),
		Email:              email,
		PasswordHash:       string(hash),
		Role:               "user",
		SubscriptionPlan:   userdomain.PlanFree,
		SubscriptionStatus: userdomain.SubscriptionStatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, req userdomain.AuthenticateRequest) (*userdomain.User, error) {
	user, err := s.repo.FindByEmail(ctx, s.db, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, userdomain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	user, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

func (s *Service) ApplySubscriptionUpdate(ctx context.Context, update userdomain.SubscriptionUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = s.clock.Now()
	}
	return s.repo.UpdateSubscription(ctx, s.db, update)
}
