package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/papermill/internal/access"
	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	"github.com/smallbiznis/papermill/internal/auth/session"
	"github.com/smallbiznis/papermill/internal/authorization"
	"github.com/smallbiznis/papermill/internal/billing"
	billingdomain "github.com/smallbiznis/papermill/internal/billing/domain"
	"github.com/smallbiznis/papermill/internal/cache"
	"github.com/smallbiznis/papermill/internal/config"
	"github.com/smallbiznis/papermill/internal/credit"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	"github.com/smallbiznis/papermill/internal/observability"
	obsmiddleware "github.com/smallbiznis/papermill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/papermill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/papermill/internal/observability/tracing"
	"github.com/smallbiznis/papermill/internal/oplog"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"github.com/smallbiznis/papermill/internal/pdfengine"
	"github.com/smallbiznis/papermill/internal/providers/email"
	"github.com/smallbiznis/papermill/internal/providers/pdf"
	"github.com/smallbiznis/papermill/internal/ratelimit"
	"github.com/smallbiznis/papermill/internal/user"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	session.Module,
	cache.Module,
	user.Module,
	access.Module,
	credit.Module,
	oplog.Module,
	billing.Module,
	pdfengine.Module,
	email.Module,
	pdf.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = multipartMaxMemory
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	cookies     *session.Manager
	sessions    *session.Store
	userSvc     userdomain.Service
	resolver    accessdomain.Resolver
	creditSvc   creditdomain.Service
	oplogSvc    oplogdomain.Service
	billingSvc  billingdomain.Service
	pdfEngine   *pdfengine.Engine
	limits      *config.LimitsHolder
	authzSvc    authorization.Service
	anonLimiter *ratelimit.AnonymousLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	Cookies    *session.Manager
	Sessions   *session.Store
	UserSvc    userdomain.Service
	Resolver   accessdomain.Resolver
	CreditSvc  creditdomain.Service
	OplogSvc   oplogdomain.Service
	BillingSvc billingdomain.Service
	PDFEngine  *pdfengine.Engine
	Limits     *config.LimitsHolder
	AuthzSvc   authorization.Service
	Limiter    *ratelimit.AnonymousLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		cookies:     p.Cookies,
		sessions:    p.Sessions,
		userSvc:     p.UserSvc,
		resolver:    p.Resolver,
		creditSvc:   p.CreditSvc,
		oplogSvc:    p.OplogSvc,
		billingSvc:  p.BillingSvc,
		pdfEngine:   p.PDFEngine,
		limits:      p.Limits,
		authzSvc:    p.AuthzSvc,
		anonLimiter: p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}

	s.registerAuthRoutes()
	s.registerPDFRoutes()
	s.registerWebhookRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/v1/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)

	s.engine.GET("/v1/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerPDFRoutes() {
	pdfGroup := s.engine.Group("/v1/pdf")
	pdfGroup.Use(s.SessionContext())
	pdfGroup.Use(s.AnonymousRateLimit())

	pdfGroup.POST("/merge", s.MergePDF)
	pdfGroup.POST("/split", s.SplitPDF)
	pdfGroup.POST("/compress", s.CompressPDF)
	pdfGroup.POST("/watermark", s.WatermarkPDF)

	s.engine.GET("/v1/operations", s.AuthRequired(), s.ListOperations)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AuthRequired())

	admin.GET("/analytics/summary", s.authorize(authorization.ObjectAnalytics, authorization.ActionAnalyticsView), s.GetAnalyticsSummary)
	admin.GET("/analytics/daily", s.authorize(authorization.ObjectAnalytics, authorization.ActionAnalyticsView), s.GetAnalyticsDaily)
}
