// Package api is the REST transport: a thin net/http layer over a
// framework-free Service struct, the same separation the teacher drew
// between its gRPC BalanceService and its handler.go REST gateway — except
// here the service IS the external surface, since SPEC_FULL.md drops gRPC
// entirely (see DESIGN.md).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/driftline/dex-core/internal/authsession"
	"github.com/driftline/dex-core/internal/chain"
	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/orderengine"
	"github.com/driftline/dex-core/internal/pool"
	"github.com/driftline/dex-core/internal/reconcile"
	"github.com/driftline/dex-core/internal/settlement"
	"github.com/driftline/dex-core/internal/users"
	"github.com/driftline/dex-core/internal/wsfeed"
)

// Service bundles every component the REST surface dispatches into.
type Service struct {
	log        zerolog.Logger
	ledger     *ledger.Ledger
	engine     *orderengine.Engine
	pools      *pool.Manager
	settlement *settlement.Queue
	chain      chain.Client
	sessions   *authsession.Store
	users      *users.Registry
	hub        *wsfeed.Hub
	reconciler *reconcile.Reconciler

	allowedOrigins []string
}

// NewService wires a Service from its components. reconciler may be nil in
// tests that don't exercise the admin endpoints.
func NewService(
	l *ledger.Ledger,
	e *orderengine.Engine,
	p *pool.Manager,
	s *settlement.Queue,
	c chain.Client,
	sessions *authsession.Store,
	u *users.Registry,
	hub *wsfeed.Hub,
	reconciler *reconcile.Reconciler,
	allowedOrigins []string,
	log zerolog.Logger,
) *Service {
	return &Service{
		log:            log.With().Str("component", "api").Logger(),
		ledger:         l,
		engine:         e,
		pools:          p,
		settlement:     s,
		chain:          c,
		sessions:       sessions,
		users:          u,
		hub:            hub,
		reconciler:     reconciler,
		allowedOrigins: allowedOrigins,
	}
}

// RegisterRoutes wires every endpoint onto mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/auth/challenge/", s.handleAuthChallenge)
	mux.HandleFunc("/auth/session", s.handleCreateSession)

	mux.HandleFunc("/users/register", s.handleRegisterUser)
	mux.HandleFunc("/users/", s.handleUserStatus)

	mux.HandleFunc("/balances/", s.handleListBalances)
	mux.HandleFunc("/deposit/", s.handleDepositAddress)
	mux.HandleFunc("/internal/credit", s.handleInternalCredit)

	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/orders/", s.handleCancelOrder)

	mux.HandleFunc("/withdrawals", s.handleWithdraw)
	mux.HandleFunc("/withdrawals/", s.handleGetWithdrawal)

	mux.HandleFunc("/admin/reconcile-now", s.handleReconcileNow)
	mux.HandleFunc("/admin/verify-integrity", s.handleVerifyIntegrity)

	mux.HandleFunc("/pools/list", s.handlePoolList)
	mux.HandleFunc("/pools/create", s.handlePoolCreate)
	mux.HandleFunc("/pools/created", s.handlePoolCreatedNotification)
	mux.HandleFunc("/pools/add-liquidity", s.handlePoolAddLiquidity)
	mux.HandleFunc("/pools/remove-liquidity", s.handlePoolRemoveLiquidity)
	mux.HandleFunc("/pools/quote", s.handlePoolQuote)
	mux.HandleFunc("/pools/swap/telemetry", s.handlePoolSwapTelemetry)
	mux.HandleFunc("/pools/", s.handlePoolByID)

	mux.HandleFunc("/ws/trade", s.hub.ServeHTTP)
}

// Middleware composes CORS, request logging and panic recovery the way the
// teacher's handler.go composed CORS and LoggingMiddleware.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return s.cors(s.logging(s.recover(next)))
}

func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.allowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Accept, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (s *Service) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Service) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("recovered from panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type ctxKey string

const userCtxKey ctxKey = "dex_user"

// authenticatedUser resolves the caller's user id from a bearer session
// token, the REST-layer equivalent of the teacher's contextWithAuth.
func (s *Service) authenticatedUser(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", false
	}
	return s.sessions.UserFor(token)
}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.chain.Healthcheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
