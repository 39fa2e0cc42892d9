package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/db"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/metrics"
	natspkg "github.com/brojonat/neardonate/service/nats"
	"github.com/brojonat/neardonate/service/near"
	"github.com/brojonat/neardonate/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DonationService is the contract adapter surface the handlers use.
// *donation.Contract implements it.
type DonationService interface {
	ContractID() string
	GetBeneficiary(ctx context.Context) (string, error)
	LatestDonations(ctx context.Context) ([]donation.Donation, error)
	GetDonationForAccount(ctx context.Context, accountID string) (*donation.Donation, error)
	Donate(ctx context.Context, amount string) (*near.CallResult, error)
	GetDonationFromTransaction(ctx context.Context, txHash string) (string, error)
}

// ReceiptStore is the receipt persistence the handlers use.
// *db.Store implements it.
type ReceiptStore interface {
	CreateReceipt(ctx context.Context, params db.CreateReceiptParams) (*db.Receipt, error)
	GetReceipt(ctx context.Context, txHash string) (*db.Receipt, error)
	ListReceipts(ctx context.Context, params db.ListReceiptsParams) ([]*db.Receipt, error)
}

// Server represents the HTTP server for the donation front end.
type Server struct {
	addr       string
	cfg        *config.Config
	donations  DonationService
	store      ReceiptStore
	confirmer  temporal.Confirmer
	subscriber natspkg.Subscriber
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The store is optional - if nil, receipt endpoints won't be available.
// The confirmer is optional - if nil, donations are not confirmed in the background.
// The subscriber is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(
	addr string,
	cfg *config.Config,
	donations DonationService,
	store ReceiptStore,
	confirmer temporal.Confirmer,
	subscriber natspkg.Subscriber,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		addr:       addr,
		cfg:        cfg,
		donations:  donations,
		store:      store,
		confirmer:  confirmer,
		subscriber: subscriber,
		metrics:    m,
		logger:     logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Contract routes
	route("GET /api/v1/beneficiary", "/api/v1/beneficiary", handleGetBeneficiary(s.donations, s.logger))
	route("GET /api/v1/donations/latest", "/api/v1/donations/latest", handleLatestDonations(s.donations, s.logger))
	route("GET /api/v1/donations/{account_id}", "/api/v1/donations/{account_id}", handleGetDonationForAccount(s.donations, s.logger))
	route("POST /api/v1/donations", "/api/v1/donations", handleDonate(s.donations, s.store, s.confirmer, s.cfg, s.logger))
	route("GET /api/v1/transactions/{tx_hash}/donation", "/api/v1/transactions/{tx_hash}/donation", handleDonationFromTransaction(s.donations, s.logger))

	// Receipt routes (if a store is configured)
	if s.store != nil {
		route("GET /api/v1/receipts", "/api/v1/receipts", handleListReceipts(s.store, s.donations.ContractID(), s.logger))
		route("GET /api/v1/receipts/{tx_hash}", "/api/v1/receipts/{tx_hash}", handleGetReceipt(s.store, s.logger))
	} else {
		s.logger.Warn("receipt store not configured, receipt endpoints disabled")
	}

	// Confirmation status (if Temporal is configured)
	if s.confirmer != nil {
		route("GET /api/v1/confirmations/{tx_hash}", "/api/v1/confirmations/{tx_hash}", handleGetConfirmation(s.confirmer, s.logger))
	} else {
		s.logger.Warn("confirmer not configured, confirmation endpoints disabled")
	}

	// SSE streaming endpoints (if a subscriber is configured)
	if s.subscriber != nil {
		mux.Handle("GET /api/v1/stream/donations/{account_id}", handleStreamDonations(s.subscriber, s.logger))
		mux.Handle("GET /api/v1/stream/donations", handleStreamDonations(s.subscriber, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("NATS subscriber not configured, streaming endpoints disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		route("GET /{$}", "/", handleIndexPage(s.renderer, s.donations))
		mux.HandleFunc("GET /favicon.ico", handleFavicon())
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE responses stay open; per-request RPC timeouts bound the rest
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"contract_id", s.donations.ContractID(),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
