package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/entities"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

const defaultMaxBodyBytes = 1 << 20

// PermissionLister returns a subject's effective permissions in a tenant
type PermissionLister interface {
	EffectivePermissions(ctx context.Context, subjectID int64, tenantID *int64) (rbac.PermissionSet, error)
}

// Config holds the server's collaborators. DB, Users, Tenants, Tokens,
// Authenticator, Engine, Repos and Recorder are required.
type Config struct {
	DB            *sql.DB
	Redis         *redis.Client
	Users         *auth.UserStore
	Tenants       *tenant.Store
	Tokens        *auth.TokenService
	Authenticator *auth.Authenticator
	Permissions   PermissionLister
	Engine        *policy.Engine
	Repos         *entities.Repositories
	Recorder      *audit.Recorder

	// Roles enables the role management routes; nil leaves them out
	Roles *rbac.Resolver

	// Limiter throttles authenticated requests per subject; nil disables it
	Limiter middleware.Limiter

	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	Version      string
	MaxBodyBytes int64
}

func (c Config) validate() error {
	switch {
	case c.DB == nil:
		return errors.New("api: database is required")
	case c.Users == nil, c.Tenants == nil:
		return errors.New("api: user and tenant stores are required")
	case c.Tokens == nil, c.Authenticator == nil:
		return errors.New("api: token service and authenticator are required")
	case c.Engine == nil:
		return errors.New("api: policy engine is required")
	case c.Repos == nil:
		return errors.New("api: repositories are required")
	case c.Recorder == nil:
		return errors.New("api: audit recorder is required")
	}
	return nil
}

// Server represents our API server
type Server struct {
	cfg     Config
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger

	authHandlers     *AuthHandlers
	projectHandlers  *ProjectHandlers
	contractHandlers *ContractHandlers
	roleHandlers     *RoleHandlers
	userHandlers     *UserHandlers
	auditHandlers    *audit.Handlers
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: observability.OrNop(cfg.Logger),
	}
	s.authHandlers = NewAuthHandlers(cfg.Authenticator, cfg.Tokens, cfg.Recorder, cfg.Permissions)
	s.projectHandlers = NewProjectHandlers(cfg.Repos.Projects, cfg.Engine, cfg.Recorder)
	s.contractHandlers = NewContractHandlers(cfg.Repos.Contracts, cfg.Repos.Projects, cfg.Engine, cfg.Recorder)
	s.userHandlers = NewUserHandlers(cfg.Users, cfg.Tokens, cfg.Engine, cfg.Recorder)
	s.auditHandlers = audit.NewHandlers(cfg.Recorder)
	if cfg.Roles != nil {
		s.roleHandlers = NewRoleHandlers(cfg.Roles, cfg.Users, cfg.Engine, cfg.Recorder)
	}

	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w)
	})
	s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(s.cfg.Metrics)))

	health := observability.NewHealthChecker(s.cfg.DB, s.cfg.Redis, s.cfg.Version)
	s.router.HandleFunc("/health", health.Readiness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", health.Liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", health.Readiness).Methods(http.MethodGet)
	if s.cfg.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.cfg.Registry)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	s.authHandlers.RegisterPublicRoutes(v1)

	authn := middleware.NewAuthMiddleware(s.cfg.Tokens, s.cfg.Users,
		middleware.WithTenantLookup(s.cfg.Tenants),
		middleware.WithAuditor(s.cfg.Recorder),
		middleware.WithLogger(s.logger),
		middleware.WithMetrics(s.cfg.Metrics),
	)
	protected := v1.NewRoute().Subrouter()
	protected.Use(authn.Handler)
	if s.cfg.Limiter != nil {
		protected.Use(middleware.RateLimit(s.cfg.Limiter, middleware.KeyByPrincipalOrIP, s.logger))
	}

	s.authHandlers.RegisterRoutes(protected)
	s.projectHandlers.RegisterRoutes(protected)
	s.contractHandlers.RegisterRoutes(protected)
	s.userHandlers.RegisterRoutes(protected)
	if s.roleHandlers != nil {
		s.roleHandlers.RegisterRoutes(protected)
	}
	s.auditHandlers.RegisterRoutes(protected,
		mux.MiddlewareFunc(middleware.RequirePermission(s.cfg.Engine, policy.ActionViewAny, "audit")))
}

// wrap applies the server-wide middleware, outermost first
func (s *Server) wrap(router http.Handler) http.Handler {
	chain := httputil.Chain(
		httputil.Recovery(s.logger),
		middleware.RequestContext(s.logger),
		httputil.RequestLogging(s.logger),
		httputil.MaxBytes(s.cfg.MaxBodyBytes),
	)
	return otelhttp.NewHandler(chain(router), "tenantguard")
}

// Handler returns the fully wrapped server handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
