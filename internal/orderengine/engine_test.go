package orderengine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/dex-core/internal/ledger"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger, context.CancelFunc) {
	t.Helper()
	l := ledger.New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	e := New(ctx, l, zerolog.Nop())
	return e, l, cancel
}

func TestPlaceOrderReservesQuoteOnBuy(t *testing.T) {
	e, l, cancel := newTestEngine(t)
	defer cancel()

	l.Credit(ledger.AccountKey{User: "alice", Token: "USDT"}, 10000)

	placed, err := e.PlaceOrder(context.Background(), "alice", LimitOrder{
		Market: "SOL/USDT", Side: Buy, Price: 20, Quantity: 10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, placed.ID)

	bal := l.GetBalance(ledger.AccountKey{User: "alice", Token: "USDT"})
	assert.Equal(t, 9800.0, bal.Available)
	assert.Equal(t, 200.0, bal.Reserved)
}

func TestPlaceOrderInsufficientBalance(t *testing.T) {
	e, _, cancel := newTestEngine(t)
	defer cancel()

	_, err := e.PlaceOrder(context.Background(), "alice", LimitOrder{
		Market: "SOL/USDT", Side: Buy, Price: 20, Quantity: 10,
	})
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrInsufficientBalance, ee.Kind)
}

func TestPlaceOrderInvalidMarket(t *testing.T) {
	e, l, cancel := newTestEngine(t)
	defer cancel()
	l.Credit(ledger.AccountKey{User: "alice", Token: "USDT"}, 1000)

	_, err := e.PlaceOrder(context.Background(), "alice", LimitOrder{
		Market: "garbage", Side: Buy, Price: 1, Quantity: 1,
	})
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrInvalidMarket, ee.Kind)
}

func TestCancelOrderReleasesReservation(t *testing.T) {
	e, l, cancel := newTestEngine(t)
	defer cancel()
	l.Credit(ledger.AccountKey{User: "alice", Token: "SOL"}, 100)

	placed, err := e.PlaceOrder(context.Background(), "alice", LimitOrder{
		Market: "SOL/USDT", Side: Sell, Price: 20, Quantity: 10,
	})
	require.NoError(t, err)

	require.NoError(t, e.CancelOrder(context.Background(), "alice", placed.ID))

	bal := l.GetBalance(ledger.AccountKey{User: "alice", Token: "SOL"})
	assert.Equal(t, 100.0, bal.Available)
	assert.Equal(t, 0.0, bal.Reserved)
}

func TestCancelOrderWrongOwnerIsInternalNotForbidden(t *testing.T) {
	e, l, cancel := newTestEngine(t)
	defer cancel()
	l.Credit(ledger.AccountKey{User: "alice", Token: "SOL"}, 100)

	placed, err := e.PlaceOrder(context.Background(), "alice", LimitOrder{
		Market: "SOL/USDT", Side: Sell, Price: 20, Quantity: 10,
	})
	require.NoError(t, err)

	err = e.CancelOrder(context.Background(), "mallory", placed.ID)
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrInternal, ee.Kind)

	// order must still be cancellable by its real owner afterward
	require.NoError(t, e.CancelOrder(context.Background(), "alice", placed.ID))
}

func TestCancelUnknownOrder(t *testing.T) {
	e, _, cancel := newTestEngine(t)
	defer cancel()

	err := e.CancelOrder(context.Background(), "alice", "does-not-exist")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrOrderNotFound, ee.Kind)
}
