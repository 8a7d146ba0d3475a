package ledger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Ledger {
	return New(zerolog.Nop())
}

func TestCreditAndReserve(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}

	l.Credit(key, 100)
	bal := l.GetBalance(key)
	assert.Equal(t, 100.0, bal.Available)
	assert.Equal(t, 100.0, bal.Total)
	assert.Equal(t, 0.0, bal.Reserved)

	require.True(t, l.Reserve(key, 40))
	bal = l.GetBalance(key)
	assert.Equal(t, 60.0, bal.Available)
	assert.Equal(t, 100.0, bal.Total)
	assert.Equal(t, 40.0, bal.Reserved)
}

func TestReserveInsufficientFunds(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 10)
	assert.False(t, l.Reserve(key, 11))

	bal := l.GetBalance(key)
	assert.Equal(t, 10.0, bal.Available)
}

func TestReleaseClampsToReserved(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)
	l.Reserve(key, 30)

	l.Release(key, 1000) // more than reserved
	bal := l.GetBalance(key)
	assert.Equal(t, 100.0, bal.Available)
	assert.Equal(t, 0.0, bal.Reserved)
}

func TestCompleteWithdrawalAfterDebitTotal(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)
	require.True(t, l.Reserve(key, 50))
	l.DebitTotal(key, 50)

	l.RecordWithdrawal("w1", "alice", "USDC", 50, "keeta:dest")
	l.CompleteWithdrawal("w1", "alice", "USDC", 50, "tx123")

	bal := l.GetBalance(key)
	assert.Equal(t, 50.0, bal.Available)
	assert.Equal(t, 50.0, bal.Total)

	rec, ok := l.Withdrawal("w1")
	require.True(t, ok)
	assert.Equal(t, WithdrawalCompleted, rec.Status)
	assert.Equal(t, "tx123", rec.TxID)
}

func TestFailWithdrawalRestoresReservation(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)
	require.True(t, l.Reserve(key, 50))
	l.DebitTotal(key, 50)

	l.RecordWithdrawal("w1", "alice", "USDC", 50, "keeta:dest")
	l.FailWithdrawal("w1", "alice", "USDC", 50, "rpc timeout")

	bal := l.GetBalance(key)
	assert.Equal(t, 100.0, bal.Available)
	assert.Equal(t, 100.0, bal.Total)

	rec, ok := l.Withdrawal("w1")
	require.True(t, ok)
	assert.Equal(t, WithdrawalFailed, rec.Status)
	assert.Equal(t, "rpc timeout", rec.LastError)
}

func TestFailWithdrawalRevertsDebitedTotal(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)
	require.True(t, l.Reserve(key, 60))
	l.DebitTotal(key, 60)

	bal := l.GetBalance(key)
	require.Equal(t, 40.0, bal.Available)
	require.Equal(t, 40.0, bal.Total)

	l.RecordWithdrawal("w2", "alice", "USDC", 60, "keeta:dest")
	l.FailWithdrawal("w2", "alice", "USDC", 60, "rpc timeout")

	bal = l.GetBalance(key)
	assert.Equal(t, 100.0, bal.Available)
	assert.Equal(t, 100.0, bal.Total)
	assert.True(t, bal.Available <= bal.Total)
}

func TestAdjustInternalBalancesPreservesReserved(t *testing.T) {
	l := newTestLedger()
	key := AccountKey{User: "alice", Token: "USDC"}
	l.Credit(key, 100)
	l.Reserve(key, 20)

	l.AdjustInternalBalances(key, 90)
	bal := l.GetBalance(key)
	assert.Equal(t, 90.0, bal.Total)
	assert.Equal(t, 70.0, bal.Available)
	assert.Equal(t, 20.0, bal.Reserved)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "100", FormatAmount(100))
	assert.Equal(t, "100.500000", FormatAmount(100.5))
}

func TestListBalancesFiltersByUser(t *testing.T) {
	l := newTestLedger()
	l.Credit(AccountKey{User: "alice", Token: "USDC"}, 10)
	l.Credit(AccountKey{User: "alice", Token: "USDT"}, 20)
	l.Credit(AccountKey{User: "bob", Token: "USDC"}, 30)

	balances := l.ListBalances("alice")
	assert.Len(t, balances, 2)
}
