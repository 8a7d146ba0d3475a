package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/metrics"
	"github.com/driftline/dex-core/internal/orderengine"
	"github.com/driftline/dex-core/internal/pool"
	"github.com/driftline/dex-core/internal/users"
)

func pathTail(prefix, path string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
}

// --- auth ---

func (s *Service) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	pubkey := pathTail("/auth/challenge", r.URL.Path)
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey required")
		return
	}
	nonce := s.sessions.Challenge(pubkey)
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

type createSessionRequest struct {
	PubKey string `json:"pubkey"`
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PubKey == "" {
		writeError(w, http.StatusBadRequest, "pubkey required")
		return
	}
	token := s.sessions.CreateSession(req.PubKey)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": req.PubKey, "jwt": token})
}

// --- users ---

type registerUserRequest struct {
	UserID string `json:"user_id"`
	PubKey string `json:"pubkey"`
}

func (s *Service) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	rec, err := s.users.Register(req.UserID, req.PubKey)
	if err != nil {
		status := http.StatusInternalServerError
		if err == users.ErrAlreadyRegistered {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Service) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSuffix(pathTail("/users", r.URL.Path), "/status")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	rec, err := s.users.Status(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- balances / deposit ---

func (s *Service) handleListBalances(w http.ResponseWriter, r *http.Request) {
	userID := pathTail("/balances", r.URL.Path)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	balances := s.ledger.ListBalances(userID)
	out := make([]map[string]string, 0, len(balances))
	for _, b := range balances {
		out = append(out, map[string]string{
			"token":     b.Token,
			"available": ledger.FormatAmount(b.Available),
			"total":     ledger.FormatAmount(b.Total),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInternalCredit simulates a deposit landing in the shadow ledger.
// Dev/demo only: a production deployment would drive this from on-chain
// deposit confirmations, not a directly callable endpoint.
type creditRequest struct {
	UserID string  `json:"user_id"`
	Token  string  `json:"token"`
	Amount float64 `json:"amount"`
}

func (s *Service) handleInternalCredit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "user_id, token and amount required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	s.ledger.Credit(ledger.AccountKey{User: req.UserID, Token: req.Token}, req.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

func (s *Service) handleDepositAddress(w http.ResponseWriter, r *http.Request) {
	tail := pathTail("/deposit", r.URL.Path)
	parts := strings.SplitN(tail, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "user_id and token required")
		return
	}
	addr := s.chain.DeriveStorageAccount(parts[0], parts[1])
	writeJSON(w, http.StatusOK, map[string]string{"storage_account": addr})
}

// --- orders ---

type placeOrderRequest struct {
	UserID   string `json:"user_id"`
	Market   string `json:"market"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	TIF      string `json:"tif,omitempty"`
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := orderengine.ParsePrice(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	quantity, err := orderengine.ParseQuantity(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}

	order := orderengine.LimitOrder{
		Market:   req.Market,
		Side:     orderengine.Side(req.Side),
		Price:    price,
		Quantity: quantity,
		TIF:      req.TIF,
	}

	placed, err := s.engine.PlaceOrder(r.Context(), req.UserID, order)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.OrdersPlaced.WithLabelValues(order.Market, string(order.Side)).Inc()
	writeJSON(w, http.StatusCreated, placed)
}

type cancelOrderRequest struct {
	UserID string `json:"user_id"`
}

func (s *Service) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	orderID := pathTail("/orders", r.URL.Path)
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order id required")
		return
	}

	var req cancelOrderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.engine.CancelOrder(r.Context(), req.UserID, orderID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.OrdersCancelled.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"id": orderID, "status": "cancelled"})
}

// --- withdrawals ---

type withdrawRequest struct {
	UserID string  `json:"user_id"`
	Token  string  `json:"token"`
	Amount string  `json:"amount"`
	To     string  `json:"to"`
}

func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := strconv.ParseFloat(req.Amount, 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	key := ledger.AccountKey{User: req.UserID, Token: req.Token}
	if !s.ledger.Reserve(key, amount) {
		writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
		return
	}
	s.ledger.DebitTotal(key, amount)

	result := s.settlement.EnqueueWithdrawal(req.UserID, req.Token, amount, req.To)
	metrics.WithdrawalsEnqueued.Inc()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": result.RequestID,
		"status":     result.Status,
	})
}

func (s *Service) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := pathTail("/withdrawals", r.URL.Path)
	if id == "" {
		writeError(w, http.StatusBadRequest, "withdrawal id required")
		return
	}
	rec, ok := s.ledger.Withdrawal(id)
	if !ok {
		writeError(w, http.StatusNotFound, "withdrawal not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- admin ---

func (s *Service) handleReconcileNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciler not configured")
		return
	}
	accounts := s.reconciler.ReconcileAccounts(r.Context())
	pools := s.reconciler.ReconcilePools(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts, "pools": pools})
}

func (s *Service) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciler not configured")
		return
	}
	accounts, pools := s.reconciler.LastReports()
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts, "pools": pools})
}

// --- pools ---

type poolTypeRequest struct {
	Kind          string `json:"kind"`
	Amplification uint64 `json:"amplification,omitempty"`
	WeightA       uint8  `json:"weight_a,omitempty"`
	WeightB       uint8  `json:"weight_b,omitempty"`
}

func parsePoolType(req poolTypeRequest) pool.PoolType {
	switch req.Kind {
	case "stableswap":
		return pool.PoolType{Kind: pool.StableSwap, Amplification: req.Amplification}
	case "weighted":
		return pool.PoolType{Kind: pool.Weighted, WeightA: req.WeightA, WeightB: req.WeightB}
	default:
		return pool.PoolType{Kind: pool.ConstantProduct}
	}
}

type createPoolRequest struct {
	TokenA     string          `json:"token_a"`
	TokenB     string          `json:"token_b"`
	AmountA    uint64          `json:"amount_a"`
	AmountB    uint64          `json:"amount_b"`
	FeeRateBps uint32          `json:"fee_rate_bps"`
	Type       poolTypeRequest `json:"type"`
}

func (s *Service) handlePoolCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.pools.CreatePool(req.TokenA, req.TokenB, req.AmountA, req.AmountB, req.FeeRateBps, parsePoolType(req.Type))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handlePoolCreatedNotification tracks a pool the caller already created
// on-chain. Non-custodial analog of handlePoolCreate: the backend never
// moves funds here, it just starts mirroring a pool whose reserves already
// exist.
func (s *Service) handlePoolCreatedNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.pools.CreatePool(req.TokenA, req.TokenB, req.AmountA, req.AmountB, req.FeeRateBps, parsePoolType(req.Type))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Service) handlePoolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pools.List())
}

type liquidityRequest struct {
	PoolID  string `json:"pool_id"`
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

func (s *Service) handlePoolAddLiquidity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	minted, amountA, amountB, err := s.pools.AddLiquidity(req.PoolID, req.AmountA, req.AmountB)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lp_minted": minted, "amount_a": amountA, "amount_b": amountB})
}

type removeLiquidityRequest struct {
	PoolID   string `json:"pool_id"`
	LPAmount uint64 `json:"lp_amount"`
}

func (s *Service) handlePoolRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req removeLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amountA, amountB, err := s.pools.RemoveLiquidity(req.PoolID, req.LPAmount)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount_a": amountA, "amount_b": amountB})
}

type swapTelemetryRequest struct {
	PoolID      string `json:"pool_id"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    uint64 `json:"amount_in"`
	AmountOut   uint64 `json:"amount_out"`
	TxSignature string `json:"tx_signature"`
	ConfirmedAt int64  `json:"confirmed_at"`
}

// handlePoolSwapTelemetry records a confirmed on-chain swap's bookkeeping
// (pending_settlement + last-swap telemetry) without touching reserves.
func (s *Service) handlePoolSwapTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req swapTelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.pools.RecordSwapConfirmation(req.PoolID, req.TokenIn, req.TokenOut, req.AmountIn, req.AmountOut, req.TxSignature, req.ConfirmedAt); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.PoolSwaps.WithLabelValues(req.PoolID).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Service) handlePoolQuote(w http.ResponseWriter, r *http.Request) {
	poolID := r.URL.Query().Get("pool_id")
	tokenIn := r.URL.Query().Get("token_in")
	amountStr := r.URL.Query().Get("amount_in")

	amountIn, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount_in must be a non-negative integer")
		return
	}

	out, err := s.pools.Quote(poolID, tokenIn, amountIn)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount_out": out})
}

// handlePoolByID serves GET /pools/{id} and POST /pools/{id}/unpause.
func (s *Service) handlePoolByID(w http.ResponseWriter, r *http.Request) {
	tail := pathTail("/pools", r.URL.Path)
	if strings.HasSuffix(tail, "/unpause") {
		poolID := strings.TrimSuffix(tail, "/unpause")
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.pools.Unpause(poolID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"pool_id": poolID, "status": "unpaused"})
		return
	}

	snap, err := s.pools.Get(tail)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
