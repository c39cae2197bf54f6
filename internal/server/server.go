package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/restyleworks/restyle/internal/catalog"
	"github.com/restyleworks/restyle/internal/config"
	"github.com/restyleworks/restyle/internal/generation"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	"github.com/restyleworks/restyle/internal/ledger"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/migration"
	"github.com/restyleworks/restyle/internal/observability"
	obsmiddleware "github.com/restyleworks/restyle/internal/observability/logger"
	obsmetrics "github.com/restyleworks/restyle/internal/observability/metrics"
	obstracing "github.com/restyleworks/restyle/internal/observability/tracing"
	"github.com/restyleworks/restyle/internal/payment"
	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
	"github.com/restyleworks/restyle/internal/providers/identity"
	"github.com/restyleworks/restyle/internal/providers/inference"
	"github.com/restyleworks/restyle/internal/providers/storage"
	"github.com/restyleworks/restyle/internal/ratelimit"
	"github.com/restyleworks/restyle/internal/unlock"
	unlockdomain "github.com/restyleworks/restyle/internal/unlock/domain"
	"github.com/restyleworks/restyle/internal/user"
	userdomain "github.com/restyleworks/restyle/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	migration.Module,
	catalog.Module,
	storage.Module,
	inference.Module,
	identity.Module,
	ratelimit.Module,
	user.Module,
	ledger.Module,
	generation.Module,
	unlock.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	verifier      *identity.Verifier
	catalog       *catalog.Holder
	store         storage.ObjectStore
	userSvc       userdomain.Service
	ledgerSvc     ledgerdomain.Service
	generationSvc generationdomain.Service
	unlockSvc     unlockdomain.Service
	paymentSvc    paymentdomain.Service
	submitLimiter *ratelimit.TokenBucket
	metrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Verifier      *identity.Verifier
	Catalog       *catalog.Holder
	Store         storage.ObjectStore
	UserSvc       userdomain.Service
	LedgerSvc     ledgerdomain.Service
	GenerationSvc generationdomain.Service
	UnlockSvc     unlockdomain.Service
	PaymentSvc    paymentdomain.Service
	SubmitLimiter *ratelimit.TokenBucket
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		verifier:      p.Verifier,
		catalog:       p.Catalog,
		store:         p.Store,
		userSvc:       p.UserSvc,
		ledgerSvc:     p.LedgerSvc,
		generationSvc: p.GenerationSvc,
		unlockSvc:     p.UnlockSvc,
		paymentSvc:    p.PaymentSvc,
		submitLimiter: p.SubmitLimiter,
		metrics:       p.Metrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/catalog", s.GetCatalog)

	api.GET("/me", s.AuthRequired(), s.GetMe)

	// -------- Generations --------
	api.POST("/uploads", s.AuthRequired(), s.CreateUpload)
	api.POST("/generations", s.AuthRequired(), s.SubmitRateLimit(), s.SubmitGeneration)
	api.GET("/generations", s.AuthRequired(), s.ListGenerations)
	api.GET("/generations/:id", s.AuthRequired(), s.GetGeneration)
	api.POST("/generations/:id/cancel", s.AuthRequired(), s.CancelGeneration)
	api.POST("/generations/:id/unlock", s.AuthRequired(), s.UnlockGeneration)

	// -------- Credits --------
	api.GET("/credits", s.AuthRequired(), s.GetCredits)
	api.GET("/credits/history", s.AuthRequired(), s.GetCreditHistory)

	// -------- Checkout --------
	api.POST("/checkout", s.AuthRequired(), s.CreateCheckout)
	api.POST("/checkout/confirm", s.AuthRequired(), s.ConfirmCheckout)
}

// Webhook endpoints authenticate by signature (Stripe) or obscurity plus
// idempotency (inference callbacks), never by bearer token.
func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/payments/webhooks/stripe", s.HandlePaymentWebhook)
	s.engine.POST("/api/inference/webhooks", s.HandleInferenceWebhook)
}
