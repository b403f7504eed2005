package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	authdomain "github.com/smallbiznis/backoffice/internal/auth/domain"
	"github.com/smallbiznis/backoffice/internal/auth/session"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/config"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	merchantdomain "github.com/smallbiznis/backoffice/internal/merchant/domain"
	"github.com/smallbiznis/backoffice/internal/observability"
	obsmiddleware "github.com/smallbiznis/backoffice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	obstracing "github.com/smallbiznis/backoffice/internal/observability/tracing"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	"github.com/smallbiznis/backoffice/internal/ratelimit"
	"github.com/smallbiznis/backoffice/internal/routeguard"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
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

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	sessions *session.Manager

	authsvc         authdomain.Service
	userSvc         userdomain.Service
	featureSvc      featuredomain.Service
	roleSvc         roledomain.Service
	merchantSvc     merchantdomain.Service
	subscriptionSvc subscriptiondomain.Service
	auditSvc        auditdomain.Service

	permissions authorization.PermissionSource
	enforcer    *authorization.Enforcer
	guard       *routeguard.Guard
	loginLimit  *ratelimit.LoginLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Sessions        *session.Manager
	Authsvc         authdomain.Service
	UserSvc         userdomain.Service
	FeatureSvc      featuredomain.Service
	RoleSvc         roledomain.Service
	MerchantSvc     merchantdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AuditSvc        auditdomain.Service
	Permissions     authorization.PermissionSource
	Enforcer        *authorization.Enforcer
	Guard           *routeguard.Guard
	LoginLimiter    *ratelimit.LoginLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		sessions:        p.Sessions,
		authsvc:         p.Authsvc,
		userSvc:         p.UserSvc,
		featureSvc:      p.FeatureSvc,
		roleSvc:         p.RoleSvc,
		merchantSvc:     p.MerchantSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditSvc:        p.AuditSvc,
		permissions:     p.Permissions,
		enforcer:        p.Enforcer,
		guard:           p.Guard,
		loginLimit:      p.LoginLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerCatalogRoutes()
	svc.registerUserRoutes()
	svc.registerMerchantRoutes()
	svc.registerSubscriptionRoutes()
	svc.registerAuditRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

var (
	platformOwner = []authorization.Role{authorization.RolePlatformOwner}
	merchantAdmin = []authorization.Role{authorization.RoleMerchantAdmin}
	merchantRoles = []authorization.Role{authorization.RoleMerchantAdmin, authorization.RoleMerchantStaff}
)

func ownerNeeds(feature, action string) routeguard.Requirement {
	return routeguard.Requirement{Roles: platformOwner, Feature: feature, Action: action}
}

func merchantAdminNeeds(feature, action string) routeguard.Requirement {
	return routeguard.Requirement{Roles: merchantAdmin, Feature: feature, Action: action, Subscription: true}
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth", s.SessionContext())

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.POST("/change-password", s.RequireSession(), s.ChangePassword)
	auth.GET("/me", s.RequireSession(), s.Me)
	auth.GET("/guard", s.Guard)
}

func (s *Server) registerCatalogRoutes() {
	features := s.engine.Group("/features", s.SessionContext())
	{
		features.GET("",
			s.Require(ownerNeeds("features.view", ""), merchantAdminNeeds("staff.manage", authorization.ActionView)),
			s.Authorize(authorization.ObjectFeature, authorization.ActFeatureView),
			s.ListFeatures)
		features.POST("",
			s.Require(ownerNeeds("features.view", "")),
			s.Authorize(authorization.ObjectFeature, authorization.ActFeatureManage),
			s.CreateFeature)
		features.PATCH("/:id",
			s.Require(ownerNeeds("features.view", "")),
			s.Authorize(authorization.ObjectFeature, authorization.ActFeatureManage),
			s.UpdateFeature)
		features.DELETE("/:id",
			s.Require(ownerNeeds("features.view", "")),
			s.Authorize(authorization.ObjectFeature, authorization.ActFeatureManage),
			s.DeleteFeature)
	}

	roles := s.engine.Group("/roles", s.SessionContext())
	{
		roles.GET("",
			s.Require(ownerNeeds("roles.view", authorization.ActionView), merchantAdminNeeds("staff.manage", authorization.ActionView)),
			s.Authorize(authorization.ObjectRole, authorization.ActRoleView),
			s.ListRoles)
		roles.GET("/:id",
			s.Require(ownerNeeds("roles.view", authorization.ActionView), merchantAdminNeeds("staff.manage", authorization.ActionView)),
			s.Authorize(authorization.ObjectRole, authorization.ActRoleView),
			s.GetRole)
		roles.POST("",
			s.Require(ownerNeeds("roles.manage", authorization.ActionCreate)),
			s.Authorize(authorization.ObjectRole, authorization.ActRoleManage),
			s.CreateRole)
		roles.PUT("/:id",
			s.Require(ownerNeeds("roles.manage", authorization.ActionEdit)),
			s.Authorize(authorization.ObjectRole, authorization.ActRoleManage),
			s.UpdateRole)
		roles.DELETE("/:id",
			s.Require(ownerNeeds("roles.manage", authorization.ActionDelete)),
			s.Authorize(authorization.ObjectRole, authorization.ActRoleManage),
			s.DeleteRole)
	}
}

func (s *Server) registerUserRoutes() {
	users := s.engine.Group("/users", s.SessionContext())

	users.POST("",
		s.Require(ownerNeeds("users.manage", authorization.ActionCreate), merchantAdminNeeds("staff.manage", authorization.ActionCreate)),
		s.Authorize(authorization.ObjectUser, authorization.ActUserCreate),
		s.CreateUser)
	users.PUT("/:id/roles",
		s.Require(ownerNeeds("users.manage", authorization.ActionEdit), merchantAdminNeeds("staff.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectUser, authorization.ActUserAssign),
		s.AssignUserRoles)
	users.POST("/:id/roles/:roleId",
		s.Require(ownerNeeds("users.manage", authorization.ActionEdit), merchantAdminNeeds("staff.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectUser, authorization.ActUserAssign),
		s.AddUserRole)
	users.DELETE("/:id/roles/:roleId",
		s.Require(ownerNeeds("users.manage", authorization.ActionEdit), merchantAdminNeeds("staff.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectUser, authorization.ActUserAssign),
		s.RemoveUserRole)
}

func (s *Server) registerMerchantRoutes() {
	merchants := s.engine.Group("/merchants", s.SessionContext())

	merchants.POST("/register", s.RegisterMerchant)
	merchants.GET("/pending",
		s.Require(ownerNeeds("merchants.view", authorization.ActionView)),
		s.Authorize(authorization.ObjectMerchant, authorization.ActMerchantView),
		s.ListPendingMerchants)
	merchants.GET("/:id",
		s.Require(ownerNeeds("merchants.view", authorization.ActionView), routeguard.Requirement{Roles: merchantRoles}),
		s.Authorize(authorization.ObjectMerchant, authorization.ActMerchantView),
		s.GetMerchant)
	merchants.POST("/:id/approve",
		s.Require(ownerNeeds("merchants.approve", "")),
		s.Authorize(authorization.ObjectMerchant, authorization.ActMerchantApprove),
		s.ApproveMerchant)
	merchants.POST("/:id/approve/confirm",
		s.Require(ownerNeeds("merchants.approve", "")),
		s.Authorize(authorization.ObjectMerchant, authorization.ActMerchantApprove),
		s.ConfirmMerchantApproval)
	merchants.POST("/:id/reject",
		s.Require(ownerNeeds("merchants.approve", "")),
		s.Authorize(authorization.ObjectMerchant, authorization.ActMerchantReject),
		s.RejectMerchant)
}

func (s *Server) registerSubscriptionRoutes() {
	subs := s.engine.Group("/subscriptions", s.SessionContext())

	subs.GET("/status",
		s.Require(routeguard.Requirement{Roles: merchantRoles}),
		s.Authorize(authorization.ObjectSubscription, authorization.ActSubscriptionStatus),
		s.GetSubscriptionStatus)
	subs.GET("/merchant/:id",
		s.Require(ownerNeeds("subscriptions.view", authorization.ActionView)),
		s.Authorize(authorization.ObjectSubscription, authorization.ActSubscriptionView),
		s.GetMerchantSubscription)
	subs.POST("/:id/convert",
		s.Require(ownerNeeds("subscriptions.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectSubscription, authorization.ActSubscriptionConvert),
		s.ConvertSubscription)
	subs.POST("/:id/cancel",
		s.Require(ownerNeeds("subscriptions.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectSubscription, authorization.ActSubscriptionCancel),
		s.CancelSubscription)
	subs.POST("/:id/reactivate",
		s.Require(ownerNeeds("subscriptions.manage", authorization.ActionEdit)),
		s.Authorize(authorization.ObjectSubscription, authorization.ActSubscriptionReactivate),
		s.ReactivateSubscription)
}

func (s *Server) registerAuditRoutes() {
	s.engine.GET("/audit-logs",
		s.SessionContext(),
		s.Require(routeguard.Requirement{Roles: platformOwner}),
		s.Authorize(authorization.ObjectAuditLog, authorization.ActAuditLogView),
		s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
