package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/execution"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
	"github.com/praxis/praxis-marketplace-gateway/internal/store"
	"github.com/sirupsen/logrus"
)

// MarketplaceSource lists tool servers.
type MarketplaceSource interface {
	SearchServers(ctx context.Context, filter marketplace.Filter) []marketplace.ServerRecord
	GetServerInfo(ctx context.Context, id string) (*marketplace.ServerRecord, error)
	ValidateServerURL(ctx context.Context, url string) bool
}

type ServiceExecutor interface {
	ExecuteService(ctx context.Context, req execution.ExecutionRequest, service discovery.EnrichedService) *execution.ExecutionResult
}

type PaymentValidator interface {
	ValidateAndSettle(ctx context.Context, req payment.PaymentValidationRequest) *payment.ValidationOutcome
	Transaction(ctx context.Context, hash string) (*store.TransactionRecord, error)
	Transactions(ctx context.Context, limit int) ([]store.TransactionRecord, error)
}

type RequirementsBuilder interface {
	BuildRequirements(amount payment.Decimal, paymentMethod, payTo string) (*payment.PaymentRequirements, error)
}

// ConnectionStats reports how many tool-server sessions are open.
type ConnectionStats interface {
	Len() int
}

// Dependencies are the collaborators the handlers delegate to. Metrics and
// Events are optional.
type Dependencies struct {
	Name            string
	Version         string
	Marketplace     MarketplaceSource
	Explorer        execution.ServiceExplorer
	Executor        ServiceExecutor
	Payments        PaymentValidator
	Requirements    RequirementsBuilder
	Connections     ConnectionStats
	Events          *EventStream
	Metrics         http.Handler
	MetricsPath     string
	MaxServers      int
	BuyerPrivateKey string
	CORSOrigins     []string
}

type Server struct {
	deps   Dependencies
	engine *gin.Engine
	logger *logrus.Logger

	mu   sync.Mutex
	http *http.Server
}

func NewServer(deps Dependencies, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(requestLogger(logger))

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader, paymentResponseHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	engine.Use(cors.New(corsConfig))

	s := &Server{deps: deps, engine: engine, logger: logger}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	s.engine.GET("/servers", s.handleSearchServers)
	s.engine.GET("/servers/:id", s.handleGetServer)
	s.engine.POST("/servers/validate", s.handleValidateServer)

	s.engine.POST("/services/explore", s.handleExplore)
	s.engine.POST("/services/execute", s.handleExecute)

	s.engine.GET("/payments", s.handleListPayments)
	s.engine.GET("/payments/requirements", s.handleRequirements)
	s.engine.GET("/payments/:hash", s.handleGetPayment)
	s.engine.POST("/payments/validate", s.handleValidatePayment)

	if s.deps.Events != nil {
		s.engine.GET("/ws/events", gin.WrapH(s.deps.Events))
	}
	if s.deps.Metrics != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.engine.GET(path, gin.WrapH(s.deps.Metrics))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Infof("HTTP API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
