// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/carbon-registry/internal/ledger"
	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/service"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// RegistryServiceInterface defines the interface for registry operations
type RegistryServiceInterface interface {
	RegisterDevice(ctx context.Context, input *service.RegisterDeviceInput) (*models.IoTDevice, error)
	MintCredit(ctx context.Context, input *service.MintCreditInput) (*models.CarbonCredit, error)
	GetCredit(ctx context.Context, tokenID uint64) (*models.CarbonCredit, error)
	GetDevice(ctx context.Context, deviceID string) (*models.IoTDevice, error)
	DeviceCredits(ctx context.Context, deviceID string) ([]*models.CarbonCredit, error)
	DeviceEvents(ctx context.Context, deviceID string, limit int) ([]models.LedgerEvent, error)
	EventsByType(ctx context.Context, eventType string, limit int) ([]models.LedgerEvent, error)
	IsVerifiedProducer(ctx context.Context, address string) (bool, error)
	TotalSupply(ctx context.Context) uint64
	DeactivateDevice(ctx context.Context, deviceID, caller string) error
	VerifyProducer(ctx context.Context, address, caller string) error
}

// MarketServiceInterface defines the interface for marketplace operations
type MarketServiceInterface interface {
	ListForSale(ctx context.Context, input *service.ListForSaleInput) (*models.CarbonCredit, error)
	Purchase(ctx context.Context, input *service.PurchaseInput) (*ledger.SaleReceipt, error)
	Delist(ctx context.Context, input *service.DelistInput) (*models.CarbonCredit, error)
	Listings(ctx context.Context) []*models.CarbonCredit
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	BalanceOf(ctx context.Context, address string) (int64, error)
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	registryService RegistryServiceInterface
	marketService   MarketServiceInterface
	config          *ServerConfig
	logger          *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	PerCallerRPS    int // Requests per second per caller address
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	registryService RegistryServiceInterface,
	marketService MarketServiceInterface,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:          mux.NewRouter(),
		registryService: registryService,
		marketService:   marketService,
		config:          config,
		logger:          logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.PerCallerRPS, s.config.RateLimitBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
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
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Device endpoints
	api.HandleFunc("/devices", s.handleRegisterDevice).Methods("POST")
	api.HandleFunc("/devices/{id}", s.handleGetDevice).Methods("GET")
	api.HandleFunc("/devices/{id}/credits", s.handleDeviceCredits).Methods("GET")
	api.HandleFunc("/devices/{id}/events", s.handleDeviceEvents).Methods("GET")

	// Event archive endpoints
	api.HandleFunc("/events", s.handleEventsByType).Methods("GET")

	// Credit endpoints
	api.HandleFunc("/credits", s.handleMintCredit).Methods("POST")
	api.HandleFunc("/credits/supply", s.handleTotalSupply).Methods("GET")
	api.HandleFunc("/credits/{id}", s.handleGetCredit).Methods("GET")
	api.HandleFunc("/credits/{id}/owner", s.handleOwnerOf).Methods("GET")

	// Marketplace endpoints
	api.HandleFunc("/credits/{id}/list", s.handleListForSale).Methods("POST")
	api.HandleFunc("/credits/{id}/purchase", s.handlePurchase).Methods("POST")
	api.HandleFunc("/credits/{id}/delist", s.handleDelist).Methods("POST")
	api.HandleFunc("/listings", s.handleListings).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balance", s.handleBalanceOf).Methods("GET")
	api.HandleFunc("/accounts/{address}/verified", s.handleIsVerified).Methods("GET")

	// Admin endpoints (caller must be the registry administrator)
	api.HandleFunc("/admin/devices/{id}/deactivate", s.handleDeactivateDevice).Methods("POST")
	api.HandleFunc("/admin/producers/{address}/verify", s.handleVerifyProducer).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "carbon-registry",
		"totalSupply": s.registryService.TotalSupply(r.Context()),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// callerAddress extracts the caller identity header from a request
func callerAddress(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}
