package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/vouchr/internal/audit"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	"github.com/smallbiznis/vouchr/internal/callback"
	"github.com/smallbiznis/vouchr/internal/callbackauth"
	callbackdomain "github.com/smallbiznis/vouchr/internal/callback/domain"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/deal"
	"github.com/smallbiznis/vouchr/internal/delivery"
	deliverydomain "github.com/smallbiznis/vouchr/internal/delivery/domain"
	"github.com/smallbiznis/vouchr/internal/eligibility"
	"github.com/smallbiznis/vouchr/internal/observability"
	obsmiddleware "github.com/smallbiznis/vouchr/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/vouchr/internal/observability/metrics"
	obstracing "github.com/smallbiznis/vouchr/internal/observability/tracing"
	"github.com/smallbiznis/vouchr/internal/providers"
	"github.com/smallbiznis/vouchr/internal/ratelimit"
	"github.com/smallbiznis/vouchr/internal/session"
	"github.com/smallbiznis/vouchr/internal/voucher"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	deal.Module,
	callbackauth.Module,
	eligibility.Module,
	voucher.Module,
	callback.Module,
	providers.Module,
	delivery.Module,
	ratelimit.Module,
	session.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
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

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	sessions      *session.Manager
	callbackSvc   callbackdomain.Service
	voucherSvc    voucherdomain.Service
	auditSvc      auditdomain.Service
	delivery      deliverydomain.Dispatcher
	redeemLimiter *ratelimit.RedeemLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Sessions      *session.Manager
	CallbackSvc   callbackdomain.Service
	VoucherSvc    voucherdomain.Service
	AuditSvc      auditdomain.Service
	Delivery      deliverydomain.Dispatcher
	RedeemLimiter *ratelimit.RedeemLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           log.Named("http.server"),
		sessions:      p.Sessions,
		callbackSvc:   p.CallbackSvc,
		voucherSvc:    p.VoucherSvc,
		auditSvc:      p.AuditSvc,
		delivery:      p.Delivery,
		redeemLimiter: p.RedeemLimiter,
	}

	svc.registerCallbackRoutes()
	svc.registerBusinessRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCallbackRoutes() {
	s.engine.POST("/payment-callback", s.PaymentCallback)
}

func (s *Server) registerBusinessRoutes() {
	business := s.engine.Group("/")
	business.Use(s.sessions.Authenticate(AbortWithError))

	business.POST("/redeem", s.RedeemRateLimit(), s.Redeem)
	business.GET("/vouchers/:key", s.GetVoucher)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/vouchers")
	admin.Use(
		s.sessions.Authenticate(AbortWithError),
		session.RequireRole(AbortWithError, session.RoleAdmin),
	)

	admin.GET("/:key/audit-logs", s.ListVoucherAuditLogs)
	admin.POST("/:key/resend", s.ResendVoucher)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
