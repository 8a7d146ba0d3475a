package pool

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(zerolog.Nop())
}

func TestCreatePool(t *testing.T) {
	m := newTestManager()
	snap, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDT", snap.ID)
	assert.Greater(t, snap.TotalLPSupply, uint64(0))

	_, err = m.CreatePool("SOL", "USDT", 1, 1, 30, PoolType{Kind: ConstantProduct})
	require.Error(t, err)
	var perr *PoolErr
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrPoolAlreadyExists, perr.Kind)
}

func TestConstantProductSwap(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	out, err := m.Quote("SOL-USDT", "USDT", 1000)
	require.NoError(t, err)
	assert.Greater(t, out, uint64(995))
	assert.Less(t, out, uint64(998))
}

func TestAddLiquidityMintsProportionalLP(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	before, err := m.Get("SOL-USDT")
	require.NoError(t, err)

	minted, amountA, amountB, err := m.AddLiquidity("SOL-USDT", 100_000, 100_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), amountA)
	assert.Equal(t, uint64(100_000), amountB)

	expected := float64(before.TotalLPSupply) * 0.10
	assert.InDelta(t, expected, float64(minted), expected*0.05)

	after, err := m.Get("SOL-USDT")
	require.NoError(t, err)
	assert.Equal(t, before.ReserveA+100_000, after.ReserveA)
	assert.Equal(t, before.ReserveB+100_000, after.ReserveB)
}

func TestAddLiquidityForcesDesiredAmountsOntoPoolRatio(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 2_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	// Pool ratio is 1:2. Offering an imbalanced (100_000, 100_000) deposit
	// should only take as much of the oversupplied side as the ratio allows.
	_, amountA, amountB, err := m.AddLiquidity("SOL-USDT", 100_000, 100_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), amountA)
	assert.Equal(t, uint64(100_000), amountB)
}

func TestRecordSwapConfirmationDoesNotMutateReserves(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	before, err := m.Get("SOL-USDT")
	require.NoError(t, err)

	require.NoError(t, m.RecordSwapConfirmation("SOL-USDT", "USDT", "SOL", 1000, 996, "tx-sig-1", 1_700_000_000))

	after, err := m.Get("SOL-USDT")
	require.NoError(t, err)
	assert.Equal(t, before.ReserveA, after.ReserveA)
	assert.Equal(t, before.ReserveB, after.ReserveB)
	assert.True(t, after.PendingSettlement)
	assert.Equal(t, "tx-sig-1", after.LastSwap.TxSignature)
	assert.Equal(t, uint64(996), after.LastSwap.AmountOut)
}

func TestRemoveLiquidityReturnsProportionalReserves(t *testing.T) {
	m := newTestManager()
	snap, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	burn := snap.TotalLPSupply / 10
	amountA, amountB, err := m.RemoveLiquidity("SOL-USDT", burn)
	require.NoError(t, err)

	assert.InDelta(t, 100_000, float64(amountA), 100_000*0.05)
	assert.InDelta(t, 100_000, float64(amountB), 100_000*0.05)
}

func TestPriceImpactSmallVsLargeTrade(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)

	smallOut, err := m.Quote("SOL-USDT", "USDT", 1000)
	require.NoError(t, err)
	smallImpact := CalculatePriceImpact(1000, smallOut, 1_000_000, 1_000_000)
	assert.Less(t, smallImpact, 0.2)

	largeOut, err := m.Quote("SOL-USDT", "USDT", 200_000)
	require.NoError(t, err)
	largeImpact := CalculatePriceImpact(200_000, largeOut, 1_000_000, 1_000_000)
	assert.Greater(t, largeImpact, 5.0)
}

func TestQuoteOnPausedPool(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: ConstantProduct})
	require.NoError(t, err)
	require.NoError(t, m.Pause("SOL-USDT", "reconciler drift"))

	_, err = m.Quote("SOL-USDT", "USDT", 1000)
	require.Error(t, err)
	var perr *PoolErr
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrPoolPaused, perr.Kind)

	require.NoError(t, m.Unpause("SOL-USDT"))
	_, err = m.Quote("SOL-USDT", "USDT", 1000)
	require.NoError(t, err)
}

func TestWeightedPoolSwap(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, PoolType{Kind: Weighted, WeightA: 80, WeightB: 20})
	require.NoError(t, err)

	out, err := m.Quote("SOL-USDT", "USDT", 1000)
	require.NoError(t, err)
	assert.Greater(t, out, uint64(0))
}

func TestStableSwapNearParity(t *testing.T) {
	m := newTestManager()
	_, err := m.CreatePool("USDC", "USDT", 1_000_000, 1_000_000, 4, PoolType{Kind: StableSwap, Amplification: 100})
	require.NoError(t, err)

	out, err := m.Quote("USDC-USDT", "USDT", 1000)
	require.NoError(t, err)
	// near-parity stableswap should return close to 1:1
	assert.Greater(t, out, uint64(990))
}
