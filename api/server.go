package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance/audit"
	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/service"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Evaluator runs the risk pipeline for one request
type Evaluator interface {
	EvaluateTransaction(ctx context.Context, req service.EvaluateRequest) (*service.Result, error)
}

// TransactionReader fetches recorded transactions
type TransactionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// CustomerStore creates, fetches and lists customers
type CustomerStore interface {
	Get(ctx context.Context, id string) (*models.Customer, error)
	Create(ctx context.Context, customer *models.Customer) error
	List(ctx context.Context, offset, limit int) ([]models.Customer, error)
	Count(ctx context.Context) (int64, error)
}

// AuditTrail reads and verifies the ledger
type AuditTrail interface {
	Entries(ctx context.Context, offset, limit int) ([]audit.Entry, error)
	Count(ctx context.Context) (int64, error)
	Verify(ctx context.Context) (audit.Verification, error)
}

// RingDetector lists laundering rings in the transfer graph
type RingDetector interface {
	DetectRings(ctx context.Context) ([]graph.Ring, error)
}

// DashboardReader computes the analytics dashboard
type DashboardReader interface {
	Dashboard(ctx context.Context) (*service.Dashboard, error)
}

// HealthCheck reports a dependency's health
type HealthCheck func(ctx context.Context) error

// Dependencies are the services the API exposes
type Dependencies struct {
	Evaluator    Evaluator
	Transactions TransactionReader
	Customers    CustomerStore
	Audit        AuditTrail
	Rings        RingDetector
	Analytics    DashboardReader
	HealthChecks map[string]HealthCheck
}

// Config configures the HTTP server
type Config struct {
	Addr            string
	ServiceName     string
	AllowOrigins    []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ServiceName:     "amlsentinel",
		AllowOrigins:    []string{"*"},
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server represents the API server
type Server struct {
	config    Config
	deps      Dependencies
	router    *gin.Engine
	http      *http.Server
	logger    *zap.Logger
	validator *validator.Validate
}

// NewServer creates the API server and registers routes
func NewServer(config Config, deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ServiceName == "" {
		config.ServiceName = "amlsentinel"
	}
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(metricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(config.AllowOrigins),
		MaxAge:           12 * time.Hour,
	}))

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		config:    config,
		deps:      deps,
		router:    router,
		logger:    logger,
		validator: validate,
	}
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/openapi.yaml", serveOpenAPI)
		v1.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/v1/openapi.yaml")))

		transactions := v1.Group("/transactions")
		{
			transactions.POST("", s.evaluateTransaction)
			transactions.GET("/:id", s.getTransaction)
		}

		customers := v1.Group("/customers")
		{
			customers.POST("", s.createCustomer)
			customers.GET("", s.listCustomers)
			customers.GET("/:id", s.getCustomer)
		}

		auditGroup := v1.Group("/audit")
		{
			auditGroup.GET("/trail", s.auditTrail)
			auditGroup.GET("/verify", s.verifyAudit)
		}

		v1.GET("/graph/rings", s.listRings)
		v1.GET("/analytics/dashboard", s.dashboard)
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("Starting API server", zap.String("addr", s.config.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("Shutting down API server")
	return s.http.Shutdown(ctx)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
