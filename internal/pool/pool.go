// Package pool implements the AMM liquidity pool registry: pool creation,
// swaps priced under three curves, liquidity provisioning, and the
// pause/unpause safety valve the reconciler trips on detected drift.
//
// Reserves are tracked as uint64 base-unit grains, matching the original
// engine's on-chain token representation. Every multiplication that could
// overflow a uint64 (reserve products, in particular) is carried out in
// github.com/holiman/uint256 before being narrowed back down, the same
// 256-bit-intermediate discipline the EVM-lineage examples in this corpus
// use for exactly this class of arithmetic.
package pool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Kind distinguishes the pricing curve a pool uses. A tagged struct is used
// instead of an interface because the variant set is small, closed, and
// needs no per-pool custom behavior beyond the fields below.
type Kind int

const (
	ConstantProduct Kind = iota
	StableSwap
	Weighted
)

// PoolType is the tagged-variant pricing configuration for a pool.
type PoolType struct {
	Kind          Kind
	Amplification uint64 // StableSwap only
	WeightA       uint8  // Weighted only, WeightA+WeightB == 100
	WeightB       uint8  // Weighted only
}

// ErrorKind classifies pool failures for the API boundary's status mapping.
type ErrorKind int

const (
	ErrPoolAlreadyExists ErrorKind = iota
	ErrPoolNotFound
	ErrPoolPaused
	ErrInvalidToken
	ErrInsufficientInputAmount
	ErrInsufficientOutputAmount
	ErrInsufficientLiquidity
	ErrInsufficientLiquidityMinted
	ErrInsufficientLiquidityBurned
	ErrInsufficientLPTokens
	ErrZeroAmount
	ErrInternal
)

// PoolErr is a typed pool failure.
type PoolErr struct {
	Kind ErrorKind
	Msg  string
}

func (e *PoolErr) Error() string { return e.Msg }

func newErr(kind ErrorKind, msg string) *PoolErr {
	return &PoolErr{Kind: kind, Msg: msg}
}

const minimumLiquidity uint64 = 1000

// SwapTelemetry is the last confirmed on-chain swap recorded against a pool.
// It is bookkeeping only — recording it never changes reserves.
type SwapTelemetry struct {
	TokenIn         string
	TokenOut        string
	AmountIn        uint64
	AmountOut       uint64
	TxSignature     string
	ConfirmedAtUnix int64
}

// LiquidityPool is one AMM pool between two tokens.
type LiquidityPool struct {
	mu sync.Mutex

	ID       string
	TokenA   string
	TokenB   string
	ReserveA uint64
	ReserveB uint64

	TotalLPSupply uint64
	FeeRateBps    uint32
	Type          PoolType

	Paused bool

	StorageAccount       string
	OnChainStorageAcct   string
	OnChainReserveA      uint64
	OnChainReserveB      uint64
	LastReconciledAtUnix int64

	// PendingSettlement is set once a swap's on-chain confirmation has been
	// recorded. Nothing in this package clears it, and the reconciler does
	// not write swap results into ReserveA/ReserveB.
	PendingSettlement bool
	LastSwap          SwapTelemetry
}

// Snapshot is a read-only, lock-free copy of pool state for API responses
// and reconciliation comparisons.
type Snapshot struct {
	ID            string
	TokenA        string
	TokenB        string
	ReserveA      uint64
	ReserveB      uint64
	TotalLPSupply uint64
	FeeRateBps    uint32
	Type          PoolType
	Paused        bool

	PendingSettlement bool
	LastSwap          SwapTelemetry
}

func (p *LiquidityPool) snapshot() Snapshot {
	return Snapshot{
		ID:                p.ID,
		TokenA:            p.TokenA,
		TokenB:            p.TokenB,
		ReserveA:          p.ReserveA,
		ReserveB:          p.ReserveB,
		TotalLPSupply:     p.TotalLPSupply,
		FeeRateBps:        p.FeeRateBps,
		Type:              p.Type,
		Paused:            p.Paused,
		PendingSettlement: p.PendingSettlement,
		LastSwap:          p.LastSwap,
	}
}

// Manager is the pool registry. Each pool has its own mutex; the registry
// map itself is guarded separately so creating pool X never blocks a swap on
// pool Y.
type Manager struct {
	log zerolog.Logger

	mu    sync.RWMutex
	pools map[string]*LiquidityPool
}

// NewManager constructs an empty pool registry.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:   log.With().Str("component", "pool").Logger(),
		pools: make(map[string]*LiquidityPool),
	}
}

func poolID(tokenA, tokenB string) string { return tokenA + "-" + tokenB }

// CreatePool creates a new pool seeded with an initial two-sided deposit,
// minting LP tokens via the integer-sqrt bootstrap formula and burning
// MINIMUM_LIQUIDITY permanently, matching the original's rug-resistance
// design.
func (m *Manager) CreatePool(tokenA, tokenB string, amountA, amountB uint64, feeRateBps uint32, ptype PoolType) (Snapshot, error) {
	id := poolID(tokenA, tokenB)

	m.mu.Lock()
	if _, exists := m.pools[id]; exists {
		m.mu.Unlock()
		return Snapshot{}, newErr(ErrPoolAlreadyExists, "pool already exists")
	}

	lpMinted, err := calculateInitialLiquidity(amountA, amountB)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}

	p := &LiquidityPool{
		ID:            id,
		TokenA:        tokenA,
		TokenB:        tokenB,
		ReserveA:      amountA,
		ReserveB:      amountB,
		TotalLPSupply: lpMinted + minimumLiquidity,
		FeeRateBps:    feeRateBps,
		Type:          ptype,
	}
	m.pools[id] = p
	m.mu.Unlock()

	m.log.Info().Str("pool_id", id).Uint64("reserve_a", amountA).Uint64("reserve_b", amountB).Msg("pool created")
	return p.snapshot(), nil
}

// Get returns a pool's current snapshot.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.RLock()
	p, ok := m.pools[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, newErr(ErrPoolNotFound, "pool not found")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// List returns every pool's snapshot.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.pools))
	for _, p := range m.pools {
		p.mu.Lock()
		out = append(out, p.snapshot())
		p.mu.Unlock()
	}
	return out
}

func (m *Manager) get(id string) (*LiquidityPool, error) {
	m.mu.RLock()
	p, ok := m.pools[id]
	m.mu.RUnlock()
	if !ok {
		return nil, newErr(ErrPoolNotFound, "pool not found")
	}
	return p, nil
}

// Pause disables swaps and liquidity operations on a pool, the reconciler's
// response to detected drift beyond tolerance.
func (m *Manager) Pause(id, reason string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.Paused = true
	p.mu.Unlock()
	m.log.Warn().Str("pool_id", id).Str("reason", reason).Msg("pool paused")
	return nil
}

// Unpause re-enables a previously paused pool, typically via an operator
// admin action once the drift has been investigated.
func (m *Manager) Unpause(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.Paused = false
	p.mu.Unlock()
	m.log.Info().Str("pool_id", id).Msg("pool unpaused")
	return nil
}

// UpdateReconciliation records the reconciler's last-observed on-chain
// reserves and timestamp for a pool.
func (m *Manager) UpdateReconciliation(id string, onChainA, onChainB uint64, unixTime int64) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.OnChainReserveA = onChainA
	p.OnChainReserveB = onChainB
	p.LastReconciledAtUnix = unixTime
	p.mu.Unlock()
	return nil
}

// Quote computes the output amount for a swap without mutating the pool.
func (m *Manager) Quote(id, tokenIn string, amountIn uint64) (uint64, error) {
	p, err := m.get(id)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amountOut(tokenIn, amountIn)
}

// RecordSwapConfirmation records a confirmed on-chain swap's telemetry and
// marks the pool pending_settlement. It never mutates ReserveA/ReserveB: a
// swap's effect on the pool shows up only as drift between the shadow
// reserves and the on-chain reserves the reconciler records, which pauses
// the pool.
func (m *Manager) RecordSwapConfirmation(id, tokenIn, tokenOut string, amountIn, amountOut uint64, txSignature string, confirmedAtUnix int64) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PendingSettlement = true
	p.LastSwap = SwapTelemetry{
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		TxSignature:     txSignature,
		ConfirmedAtUnix: confirmedAtUnix,
	}
	m.log.Info().Str("pool_id", id).Str("tx_signature", txSignature).Msg("swap confirmation recorded")
	return nil
}

// AddLiquidity deposits both tokens, mints LP tokens, and updates reserves
// synchronously. Unlike swap-driven reserve changes, deposits/withdrawals
// are direct user actions against the shadow ledger and are not subject to
// reconciler confirmation, so the reserves are updated immediately here.
//
// The desired amounts are first forced onto the pool's current reserve
// ratio via calculateOptimalAmounts, so a caller offering an imbalanced
// deposit only ever contributes at the pool's price — the excess of
// whichever side was over-supplied is simply not taken.
func (m *Manager) AddLiquidity(id string, amountADesired, amountBDesired uint64) (lpMinted, amountA, amountB uint64, err error) {
	p, err := m.get(id)
	if err != nil {
		return 0, 0, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Paused {
		return 0, 0, 0, newErr(ErrPoolPaused, "pool is paused")
	}

	amountA, amountB = calculateOptimalAmounts(amountADesired, amountBDesired, p.ReserveA, p.ReserveB)

	lpMinted, err = calculateLPMint(amountA, amountB, p.ReserveA, p.ReserveB, p.TotalLPSupply)
	if err != nil {
		return 0, 0, 0, err
	}

	p.ReserveA += amountA
	p.ReserveB += amountB
	p.TotalLPSupply += lpMinted
	return lpMinted, amountA, amountB, nil
}

// RemoveLiquidity burns LP tokens and returns the proportional reserves,
// updating pool state synchronously for the same reason AddLiquidity does.
func (m *Manager) RemoveLiquidity(id string, lpAmount uint64) (amountA, amountB uint64, err error) {
	p, err := m.get(id)
	if err != nil {
		return 0, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Paused {
		return 0, 0, newErr(ErrPoolPaused, "pool is paused")
	}

	amountA, amountB, err = calculateRemoveAmounts(lpAmount, p.ReserveA, p.ReserveB, p.TotalLPSupply)
	if err != nil {
		return 0, 0, err
	}

	p.ReserveA -= amountA
	p.ReserveB -= amountB
	p.TotalLPSupply -= lpAmount
	return amountA, amountB, nil
}

func (p *LiquidityPool) amountOut(tokenIn string, amountIn uint64) (uint64, error) {
	if p.Paused {
		return 0, newErr(ErrPoolPaused, "pool is paused")
	}
	if tokenIn != p.TokenA && tokenIn != p.TokenB {
		return 0, newErr(ErrInvalidToken, "token not in pool")
	}
	if amountIn == 0 {
		return 0, newErr(ErrInsufficientInputAmount, "input amount must be positive")
	}

	var reserveIn, reserveOut uint64
	if tokenIn == p.TokenA {
		reserveIn, reserveOut = p.ReserveA, p.ReserveB
	} else {
		reserveIn, reserveOut = p.ReserveB, p.ReserveA
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, newErr(ErrInsufficientLiquidity, "pool has no liquidity")
	}

	switch p.Type.Kind {
	case ConstantProduct:
		return constantProductOut(amountIn, reserveIn, reserveOut, p.FeeRateBps)
	case StableSwap:
		return stableSwapOut(amountIn, reserveIn, reserveOut, p.FeeRateBps, p.Type.Amplification)
	case Weighted:
		return weightedPoolOut(amountIn, reserveIn, reserveOut, p.FeeRateBps, weightOf(p.Type, tokenIn, p.TokenA), otherWeight(p.Type, tokenIn, p.TokenA))
	default:
		return 0, newErr(ErrInternal, "unknown pool type")
	}
}

func weightOf(t PoolType, tokenIn, tokenA string) uint8 {
	if tokenIn == tokenA {
		return t.WeightA
	}
	return t.WeightB
}

func otherWeight(t PoolType, tokenIn, tokenA string) uint8 {
	if tokenIn == tokenA {
		return t.WeightB
	}
	return t.WeightA
}
