package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newTestService(t *testing.T) (*Service, *http.ServeMux, context.CancelFunc) {
	t.Helper()
	log := zerolog.Nop()
	l := ledger.New(log)
	ctx, cancel := context.WithCancel(context.Background())
	engine := orderengine.New(ctx, l, log)
	pools := pool.NewManager(log)
	chainClient := chain.NewDemoClient("https://testnet.keeta.example/rpc", log)
	sq := settlement.New(ctx, l, chainClient, nil, log)
	sessions := authsession.New()
	registry := users.New()
	hub := wsfeed.NewHub(log)
	reconciler := reconcile.New(l, pools, chainClient, nil, 1e-4, log)

	svc := NewService(l, engine, pools, sq, chainClient, sessions, registry, hub, reconciler, []string{"http://localhost:3000"}, log)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	return svc, mux, cancel
}

func TestHealthEndpoint(t *testing.T) {
	_, mux, cancel := newTestService(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderLifecycle(t *testing.T) {
	svc, mux, cancel := newTestService(t)
	defer cancel()

	svc.ledger.Credit(ledger.AccountKey{User: "alice", Token: "USDT"}, 10000)

	body, _ := json.Marshal(map[string]string{
		"user_id": "alice", "market": "SOL/USDT", "side": "buy", "price": "20", "quantity": "10",
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var placed struct {
		ID string `json:"ID"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	require.NotEmpty(t, placed.ID)

	cancelBody, _ := json.Marshal(map[string]string{"user_id": "alice"})
	cancelReq := httptest.NewRequest(http.MethodDelete, "/orders/"+placed.ID, bytes.NewReader(cancelBody))
	cancelRec := httptest.NewRecorder()
	mux.ServeHTTP(cancelRec, cancelReq)
	assert.Equal(t, http.StatusOK, cancelRec.Code)
}

func TestPoolCreateAndQuote(t *testing.T) {
	_, mux, cancel := newTestService(t)
	defer cancel()

	body, _ := json.Marshal(map[string]interface{}{
		"token_a": "SOL", "token_b": "USDT", "amount_a": 1_000_000, "amount_b": 1_000_000, "fee_rate_bps": 30,
	})
	req := httptest.NewRequest(http.MethodPost, "/pools/create", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	quoteReq := httptest.NewRequest(http.MethodGet, "/pools/quote?pool_id=SOL-USDT&token_in=USDT&amount_in=1000", nil)
	quoteRec := httptest.NewRecorder()
	mux.ServeHTTP(quoteRec, quoteReq)
	assert.Equal(t, http.StatusOK, quoteRec.Code)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	_, mux, cancel := newTestService(t)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"user_id": "alice", "token": "USDT", "amount": "100", "to": "keeta:dest"})
	req := httptest.NewRequest(http.MethodPost, "/withdrawals", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
