package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"moneypools/internal/core"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
	"moneypools/internal/middleware/ratelimit"
	"moneypools/internal/middleware/security"
	"moneypools/internal/middleware/trace"
	"moneypools/internal/report"
	"moneypools/internal/services"
)

// Ledger is the set of ledger operations served over HTTP. Implemented by
// *services.LedgerService.
type Ledger interface {
	ReportingCurrency() core.Currency
	CreatePool(ctx context.Context, owner string, p core.Pool) (core.Pool, error)
	ListPools(ctx context.Context, owner string) ([]core.Pool, error)
	GetPool(ctx context.Context, owner, id string) (core.Pool, error)
	SetPoolAttributes(ctx context.Context, owner, id string, u core.PoolAttributesUpdate) (core.Pool, error)
	AddTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner, id string) (bool, error)
	UpdateTransaction(ctx context.Context, owner, id string, u core.TransactionUpdate) (core.Transaction, error)
	ListTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error)
	Transfer(ctx context.Context, owner string, req services.TransferRequest) (services.TransferResult, error)
	SyncPoolBalance(ctx context.Context, owner, poolID string, targets []decimal.Decimal) (services.SyncResult, error)
}

// Reporter builds balance history reports. Implemented by *report.Engine.
type Reporter interface {
	Build(ctx context.Context, owner string, req report.Request) (report.Report, error)
}

type Options struct {
	Addr    string
	Ledger  Ledger
	Reports Reporter
	Auth    *auth.Authenticator
	Logger  *log.Logger
	// RateLimit applies per client IP; zero uses ratelimit.DefaultConfig.
	RateLimit ratelimit.Config
	// Ready is consulted by /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	ledger   Ledger
	reports  Reporter
	auth     *auth.Authenticator
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger
	ready    func(ctx context.Context) error
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	authn := opts.Auth
	if authn == nil {
		authn, _ = auth.New(auth.Config{Mode: auth.ModeNone})
	}

	detector := security.NewDetector(logger)
	s := &Server{
		ledger:   opts.Ledger,
		reports:  opts.Reports,
		auth:     authn,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		logger:   logger,
		ready:    opts.Ready,
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /pools", s.handleListPools)
	api.HandleFunc("POST /pools", s.handleCreatePool)
	api.HandleFunc("GET /pools/{id}", s.handleGetPool)
	api.HandleFunc("PATCH /pools/{id}", s.handleUpdatePool)
	api.HandleFunc("POST /pools/{id}/sync", s.handleSyncPool)
	api.HandleFunc("GET /transactions", s.handleListTransactions)
	api.HandleFunc("POST /transactions", s.handleAddTransaction)
	api.HandleFunc("PATCH /transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("POST /transfer", s.handleTransfer)
	api.HandleFunc("GET /report", s.handleReport)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /currencies/{code}", handleCurrency)
	mux.Handle("/", s.auth.Middleware(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusForbidden, CodeForbidden, "Missing or invalid auth header").Write(w)
	})(api))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Please try again later.").Write(w)
	})(mux)

	var h http.Handler = limited
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return h
}

// Shutdown drains in-flight requests and stops background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

type currencyResponse struct {
	Code        string `json:"code"`
	NumericCode string `json:"numeric_code"`
	Precision   int32  `json:"precision"`
}

func handleCurrency(w http.ResponseWriter, r *http.Request) {
	c, err := core.ParseCurrency(r.PathValue("code"))
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(currencyResponse{
		Code:        c.Code,
		NumericCode: c.NumericCode,
		Precision:   c.Precision,
	}).Write(w)
}
