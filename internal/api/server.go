// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hexastock/internal/adapter"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/service"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the interface for portfolio service operations
type PortfolioServiceInterface interface {
	CreatePortfolio(ctx context.Context, input *service.CreatePortfolioInput) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error)
	Deposit(ctx context.Context, portfolioID string, input *service.CashInput) (*models.TradeResult, error)
	Withdraw(ctx context.Context, portfolioID string, input *service.CashInput) (*models.TradeResult, error)
	Buy(ctx context.Context, portfolioID string, req *service.TradeRequest) (*models.TradeResult, error)
	Sell(ctx context.Context, portfolioID string, req *service.TradeRequest) (*models.TradeResult, error)
	GetHolding(ctx context.Context, portfolioID, symbol string) (*models.HoldingView, error)
	ListHoldings(ctx context.Context, portfolioID string) ([]models.HoldingView, error)
	ListTransactions(ctx context.Context, portfolioID, symbol string) ([]models.Transaction, error)
	GetReport(ctx context.Context, portfolioID string, asOf time.Time) (*models.PortfolioReport, error)
	VerifyReplay(ctx context.Context, portfolioID string) (*service.ReplayResult, error)
	GetStockPrice(ctx context.Context, symbol string) (*adapter.Quote, error)
	PriceHealth() *adapter.ProviderHealth
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64 // Per-client request rate
	Burst             int     // Per-client burst size
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, portfolioService PortfolioServiceInterface) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolios", s.handleCreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/portfolios/{id}/withdrawals", s.handleWithdraw).Methods("POST")

	// Trading and holdings endpoints
	api.HandleFunc("/portfolios/{id}/purchases", s.handleBuy).Methods("POST")
	api.HandleFunc("/portfolios/{id}/sales", s.handleSell).Methods("POST")
	api.HandleFunc("/portfolios/{id}/holdings", s.handleListHoldings).Methods("GET")
	api.HandleFunc("/portfolios/{id}/holdings/{symbol}", s.handleGetHolding).Methods("GET")
	api.HandleFunc("/portfolios/{id}/transactions", s.handleListTransactions).Methods("GET")

	// Performance endpoints
	api.HandleFunc("/portfolios/{id}/report", s.handleGetReport).Methods("GET")
	api.HandleFunc("/portfolios/{id}/replay", s.handleVerifyReplay).Methods("GET")

	// Stock endpoints
	api.HandleFunc("/stocks/{symbol}/price", s.handleGetStockPrice).Methods("GET")

	// preflight requests are answered by CORSMiddleware once a route matches
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "hexastock",
	}
	if health := s.portfolioService.PriceHealth(); health != nil {
		response["priceProvider"] = health
		if !health.IsHealthy {
			response["status"] = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, response)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
