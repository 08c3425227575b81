package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/papermill/internal/billing/domain"
	"github.com/smallbiznis/papermill/internal/cache"
	"github.com/smallbiznis/papermill/internal/clock"
	"github.com/smallbiznis/papermill/internal/config"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	"github.com/smallbiznis/papermill/internal/observability/metrics"
	emailprovider "github.com/smallbiznis/papermill/internal/providers/email"
	receiptprovider "github.com/smallbiznis/papermill/internal/providers/pdf"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"github.com/smallbiznis/papermill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      domain.Repository
	UserSvc   userdomain.Service
	CreditSvc creditdomain.Service
	Cache     cache.AccessRecordCache    `optional:"true"`
	Metrics   *metrics.Metrics           `optional:"true"`
	Email     emailprovider.Provider    `optional:"true"`
	Receipts  receiptprovider.Provider  `optional:"true"`
}

type serviceImpl struct {
	log       *zap.Logger
	secret    string
	clock     clock.Clock
	genID     *snowflake.Node
	repo      domain.Repository
	userSvc   userdomain.Service
	creditSvc creditdomain.Service
	cache     cache.AccessRecordCache
	metrics   *metrics.Metrics
	email     emailprovider.Provider
	receipts  receiptprovider.Provider
}

func NewService(p Params) domain.Service {
	return &serviceImpl{
		log:       p.Log.Named("billing.service"),
		secret:    strings.TrimSpace(p.Cfg.WebhookSecret),
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		userSvc:   p.UserSvc,
		creditSvc: p.CreditSvc,
		cache:     p.Cache,
		metrics:   p.Metrics,
		email:     p.Email,
		receipts:  p.Receipts,
	}
}

func (s *serviceImpl) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	if err := s.verifySignature(payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return domain.ErrInvalidPayload
	}

	record := &domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: strings.TrimSpace(event.ID),
		EventType:       event.Type,
		RawPayload:      payload,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrEventAlreadyProcessed
		}
		return err
	}

	s.metrics.RecordPaymentEvent(provider, event.Type)

	switch event.Type {
	case domain.EventSubscriptionActivated, domain.EventSubscriptionUpdated:
		return s.applySubscription(ctx, event, false)
	case domain.EventSubscriptionCanceled:
		return s.applySubscription(ctx, event, true)
	case domain.EventCheckoutCompleted:
		return s.applyCheckout(ctx, event)
	default:
		s.log.Debug("ignoring unhandled payment event",
			zap.String("provider", provider),
			zap.String("event_type", event.Type),
		)
		return nil
	}
}

func (s *serviceImpl) verifySignature(payload []byte, headers http.Header) error {
	if s.secret == "" {
		return nil
	}
	provided := strings.TrimSpace(headers.Get(signatureHeader))
	if provided == "" {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (s *serviceImpl) applySubscription(ctx context.Context, event domain.WebhookEvent, canceled bool) error {
	email := userdomain.NormalizeEmail(event.Data.Email)
	if email == "" {
		return domain.ErrInvalidPayload
	}

	user, err := s.userSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			// Checkout for an email with no account yet. Nothing to update;
			// the provider will redeliver subscription events after signup.
			s.log.Warn("subscription event for unknown user", zap.String("email", email))
			return nil
		}
		return err
	}

	update := userdomain.SubscriptionUpdate{
		UserID:    user.ID,
		Plan:      user.SubscriptionPlan,
		Status:    userdomain.SubscriptionStatusActive,
		PeriodEnd: user.SubscriptionPeriodEnd,
		UpdatedAt: s.clock.Now(),
	}

	if canceled {
		// Keep the stored plan and period end so access survives until the
		// paid-through date, then expires naturally.
		update.Status = userdomain.SubscriptionStatusCanceled
	} else {
		if plan := parsePlan(event.Data.Plan); plan != "" {
			update.Plan = plan
		}
		if event.Data.CurrentPeriodEnd > 0 {
			periodEnd := time.Unix(event.Data.CurrentPeriodEnd, 0).UTC()
			update.PeriodEnd = &periodEnd
		}
	}

	if err := s.userSvc.ApplySubscriptionUpdate(ctx, update); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(email)
	}
	return nil
}

func (s *serviceImpl) applyCheckout(ctx context.Context, event domain.WebhookEvent) error {
	if event.Data.Mode != domain.CheckoutModeOneTime {
		// Subscription checkouts are handled by the subscription events.
		return nil
	}
	email := userdomain.NormalizeEmail(event.Data.Email)
	if email == "" {
		return domain.ErrInvalidPayload
	}

	purchase, err := s.creditSvc.MintPurchase(ctx, email, event.Data.AmountTotal, event.Data.Currency)
	if err != nil {
		return err
	}

	s.sendReceipt(ctx, email, purchase.PurchaseID, event.Data.AmountTotal, event.Data.Currency)
	return nil
}

// sendReceipt is best-effort: the purchase is already minted and a receipt
// failure must not fail the webhook.
func (s *serviceImpl) sendReceipt(ctx context.Context, email, purchaseID string, amountCent int64, currency string) {
	if s.email == nil || s.receipts == nil {
		return
	}

	amount := formatAmount(amountCent, currency)
	_, err := s.receipts.GenerateReceipt(ctx, receiptprovider.ReceiptData{
		PurchaseID:  purchaseID,
		DatePaid:    s.clock.Now().Format("2006-01-02"),
		BuyerEmail:  email,
		Description: "Papermill one-time PDF credit",
		Amount:      amount,
	})
	if err != nil {
		s.log.Warn("receipt generation failed", zap.String("purchase_id", purchaseID), zap.Error(err))
		return
	}

	body := fmt.Sprintf(
		"<p>Thanks for your purchase.</p><p>Credit id: <strong>%s</strong></p><p>Amount: %s</p>",
		purchaseID, amount,
	)
	if err := s.email.Send(ctx, []string{email}, "Your Papermill receipt", body); err != nil {
		s.log.Warn("receipt email failed", zap.String("purchase_id", purchaseID), zap.Error(err))
	}
}

func parsePlan(raw string) userdomain.Plan {
	switch userdomain.Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case userdomain.PlanMonthly:
		return userdomain.PlanMonthly
	case userdomain.PlanYearly:
		return userdomain.PlanYearly
	case userdomain.PlanFree:
		return userdomain.PlanFree
	default:
		return ""
	}
}

func formatAmount(amountCent int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(amountCent)/100, strings.ToUpper(strings.TrimSpace(currency)))
}
