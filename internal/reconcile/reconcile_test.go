package reconcile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/pool"
)

type fakeChain struct {
	balances map[string]float64
	poolA    map[string]uint64
	poolB    map[string]uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{balances: map[string]float64{}, poolA: map[string]uint64{}, poolB: map[string]uint64{}}
}

func (f *fakeChain) SendOnBehalfLegacy(ctx context.Context, user, token string, amount float64, to string) (string, error) {
	return "tx", nil
}
func (f *fakeChain) DeriveStorageAccount(user, token string) string { return user + ":" + token }
func (f *fakeChain) VerifyPoolReserves(ctx context.Context, storageAccount string) (uint64, uint64, error) {
	return f.poolA[storageAccount], f.poolB[storageAccount], nil
}
func (f *fakeChain) VerifyACL(ctx context.Context, account string) (bool, error) { return true, nil }
func (f *fakeChain) QueryBalance(ctx context.Context, storageAccount string) (float64, error) {
	return f.balances[storageAccount], nil
}
func (f *fakeChain) Healthcheck(ctx context.Context) error { return nil }

func TestReconcileAccountsAutoCorrectsDust(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	key := ledger.AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)

	fc := newFakeChain()
	fc.balances["alice:USDC"] = 100.00001 // dust-level drift

	r := New(l, pool.NewManager(zerolog.Nop()), fc, nil, 1e-4, zerolog.Nop())
	reports := r.ReconcileAccounts(context.Background())
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Corrected)

	bal := l.GetBalance(key)
	assert.Equal(t, 100.00001, bal.Total)
}

func TestReconcileAccountsFlagsLargeDriftWithoutCorrecting(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	key := ledger.AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)

	fc := newFakeChain()
	fc.balances["alice:USDC"] = 50 // huge drift

	r := New(l, pool.NewManager(zerolog.Nop()), fc, nil, 1e-4, zerolog.Nop())
	reports := r.ReconcileAccounts(context.Background())
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Corrected)

	bal := l.GetBalance(key)
	assert.Equal(t, 100.0, bal.Total) // untouched
}

func TestReconcileAccountsFlagsSmallRelativeButLargeAbsoluteDrift(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	key := ledger.AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 1_000_000)

	fc := newFakeChain()
	// Relative drift (50 / 1,000,000 = 5e-5) is below the threshold, but the
	// absolute drift ($50) is real money and must never be auto-corrected.
	fc.balances["alice:USDC"] = 999_950

	r := New(l, pool.NewManager(zerolog.Nop()), fc, nil, 1e-4, zerolog.Nop())
	reports := r.ReconcileAccounts(context.Background())
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Corrected)

	bal := l.GetBalance(key)
	assert.Equal(t, 1_000_000.0, bal.Total) // untouched
}

func TestReconcilePoolsPausesOnAnyNonzeroDriftEvenWhenSmall(t *testing.T) {
	pm := pool.NewManager(zerolog.Nop())
	_, err := pm.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, pool.PoolType{Kind: pool.ConstantProduct})
	require.NoError(t, err)

	fc := newFakeChain()
	// A single-unit drift is tiny relative to 1,000,000 reserves, but pools
	// get zero tolerance: any nonzero drift pauses.
	fc.poolA["SOL-USDT"] = 999_999
	fc.poolB["SOL-USDT"] = 1_000_000

	r := New(ledger.New(zerolog.Nop()), pm, fc, nil, 1e-4, zerolog.Nop())
	reports := r.ReconcilePools(context.Background())
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Paused)

	snap, err := pm.Get("SOL-USDT")
	require.NoError(t, err)
	assert.True(t, snap.Paused)
}

func TestReconcilePoolsAutoPausesOnDrift(t *testing.T) {
	pm := pool.NewManager(zerolog.Nop())
	_, err := pm.CreatePool("SOL", "USDT", 1_000_000, 1_000_000, 30, pool.PoolType{Kind: pool.ConstantProduct})
	require.NoError(t, err)

	fc := newFakeChain()
	fc.poolA["SOL-USDT"] = 500_000 // drastically different from the 1,000,000 shadow reserve
	fc.poolB["SOL-USDT"] = 500_000

	r := New(ledger.New(zerolog.Nop()), pm, fc, nil, 1e-4, zerolog.Nop())
	reports := r.ReconcilePools(context.Background())
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Paused)

	snap, err := pm.Get("SOL-USDT")
	require.NoError(t, err)
	assert.True(t, snap.Paused)
}
