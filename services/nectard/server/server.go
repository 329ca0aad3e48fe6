// Package server exposes the nectard HTTP API: partner-facing issuance and
// vault operations behind HMAC auth, public supply queries, and operator
// endpoints behind bearer-token auth.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatewayauth "nectar/gateway/auth"
	"nectar/gateway/middleware"
	"nectar/native/params"
	"nectar/native/points"
	"nectar/native/pricefeed"
	"nectar/native/vault"
	"nectar/observability"
	"nectar/observability/logging"
	"nectar/services/nectard/storage"
)

const (
	scopePartner = "partner"
	scopeAdmin   = "admin"
)

type contextKey string

const principalKey contextKey = "nectard.principal"

// Config carries the subset of daemon configuration the server needs.
type Config struct {
	ListenAddress  string
	AllowedOrigins []string
	Admin          middleware.AuthConfig
	PartnerRate    middleware.RateLimit
	AdminRate      middleware.RateLimit
	PriceBase      string
	PriceQuote     string
}

// Server wires the engines behind the HTTP API.
type Server struct {
	cfg         Config
	log         *slog.Logger
	engine      *vault.Engine
	ledger      *points.Ledger
	params      *params.Store
	prices      *pricefeed.Manager
	store       *storage.Storage
	partnerAuth *gatewayauth.Authenticator
	adminAuth   *middleware.Authenticator
	limiter     *middleware.RateLimiter
}

// New assembles a Server; the engines must already be hydrated.
func New(cfg Config, log *slog.Logger, engine *vault.Engine, ledger *points.Ledger, paramStore *params.Store, prices *pricefeed.Manager, store *storage.Storage, partnerAuth *gatewayauth.Authenticator) *Server {
	s := &Server{
		cfg:         cfg,
		log:         log,
		engine:      engine,
		ledger:      ledger,
		params:      paramStore,
		prices:      prices,
		store:       store,
		partnerAuth: partnerAuth,
		adminAuth:   middleware.NewAuthenticator(cfg.Admin, log),
		limiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			scopePartner: cfg.PartnerRate,
			scopeAdmin:   cfg.AdminRate,
		}),
	}
	recorder := newAuditRecorder(store, log)
	ledger.SetEmitter(recorder)
	engine.SetEmitter(recorder)
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("public"))
			r.Get("/points/balance/{address}", s.handleBalance)
			r.Get("/supply", s.handleSupply)
			r.Get("/supply/history", s.handleSupplyHistory)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("partner"))
			r.Use(s.limiter.Middleware(scopePartner))
			r.Use(s.requirePartner)
			r.Post("/points/issue", s.handleIssue)
			r.Post("/points/redeem", s.handleRedeem)
			r.Post("/vault/withdraw", s.handleWithdraw)
			r.Get("/vault", s.handleVaultState)
			r.Get("/quota", s.handleQuota)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Metrics("admin"))
		r.Use(s.limiter.Middleware(scopeAdmin))
		r.Use(s.adminAuth.Middleware(middleware.ScopeAdmin))
		r.Post("/onboard", s.handleOnboard)
		r.Post("/revenue", s.handleRevenue)
		r.Post("/vault/lock", s.handleSetLocked(true))
		r.Post("/vault/unlock", s.handleSetLocked(false))
		r.Post("/token/pause", s.handleSetPaused(true))
		r.Post("/token/resume", s.handleSetPaused(false))
		r.Post("/price", s.handleRecordPrice)
		r.Get("/params", s.handleGetParams)
		r.Put("/params", s.handlePutParams)
		r.Get("/audit", s.handleAudit)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", s.cfg.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}

// requirePartner verifies the HMAC headers and attaches the resolved partner
// identity to the request context.
func (s *Server) requirePartner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			limited := io.LimitReader(r.Body, int64(gatewayauth.MaxBodyForSignature)+1)
			data, err := io.ReadAll(limited)
			if err != nil {
				writeError(w, http.StatusBadRequest, "read request body")
				return
			}
			if len(data) > gatewayauth.MaxBodyForSignature {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			body = data
		}
		principal, err := s.partnerAuth.Authenticate(r, body)
		if err != nil {
			observability.Gateway().RecordAuthFailure("hmac")
			s.log.Warn("partner auth rejected", "path", r.URL.Path, "error", err,
				logging.MaskField("api_key", r.Header.Get(gatewayauth.HeaderAPIKey)))
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) (*gatewayauth.Principal, bool) {
	principal, ok := r.Context().Value(principalKey).(*gatewayauth.Principal)
	return principal, ok
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordSupplyMetrics refreshes the supply gauges and the daily snapshot
// after any operation that moved points.
func (s *Server) recordSupplyMetrics(ctx context.Context) {
	info := s.ledger.Supply()
	observability.Supply().Record(info.Circulating, info.GlobalDailyMinted)
	var collateral, reserved uint64
	for _, v := range s.engine.ListVaults() {
		collateral += v.CollateralBalance
		reserved += v.ReservedForBacking
	}
	observability.Supply().RecordVaults(collateral, reserved)
	snap := storage.SupplySnapshot{
		Day:         uint64(time.Now().UTC().Unix()) / 86_400,
		Circulating: info.Circulating,
		DailyMinted: info.GlobalDailyMinted,
	}
	if err := s.store.UpsertSupplySnapshot(ctx, snap); err != nil {
		s.log.Error("record supply snapshot", "error", err)
	}
}
