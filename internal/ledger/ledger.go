// Package ledger is the shadow ledger: the in-memory, authoritative view of
// every account's balance that the rest of the system trusts between on-chain
// confirmations.
//
// Two numbers are tracked per (user, token): available and total. Reserving
// funds for an order or a withdrawal lowers available but leaves total
// unchanged; releasing a reservation reverses that; debiting total happens
// once funds are committed to leave (a withdrawal is accepted for settlement).
// reserved is always total-available and is never stored directly.
//
// Alongside the shadow balances the ledger keeps a second, independent map:
// the on-chain mirror, the ledger's best understanding of what the chain
// itself reports for each account. The two are expected to drift slightly and
// are reconciled out-of-band by internal/reconcile; this package never
// compares them itself.
//
// Every account key has its own mutex. There is no global lock: two
// unrelated (user, token) pairs never contend with each other, matching the
// teacher's principle of narrow, per-key critical sections rather than one
// lock guarding the whole map.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AccountKey identifies a single balance line.
type AccountKey struct {
	User  string
	Token string
}

func (k AccountKey) String() string {
	return k.User + ":" + k.Token
}

// WithdrawalStatus is the withdrawal state machine's current state.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// WithdrawalRecord tracks one outstanding or settled withdrawal.
type WithdrawalRecord struct {
	ID        string
	User      string
	Token     string
	Amount    float64
	To        string
	Status    WithdrawalStatus
	TxID      string
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is the externally-reported view of an account line.
type Balance struct {
	Token     string
	Available float64
	Total     float64
	Reserved  float64
}

type account struct {
	mu        sync.Mutex
	available float64
	total     float64
}

// Ledger is the shadow ledger. Zero value is not usable; construct with New.
type Ledger struct {
	log zerolog.Logger

	accountsMu sync.RWMutex
	accounts   map[AccountKey]*account

	onChainMu sync.RWMutex
	onChain   map[AccountKey]float64

	withdrawalsMu sync.RWMutex
	withdrawals   map[string]*WithdrawalRecord
}

// New constructs an empty ledger.
func New(log zerolog.Logger) *Ledger {
	return &Ledger{
		log:         log.With().Str("component", "ledger").Logger(),
		accounts:    make(map[AccountKey]*account),
		onChain:     make(map[AccountKey]float64),
		withdrawals: make(map[string]*WithdrawalRecord),
	}
}

func (l *Ledger) entry(key AccountKey) *account {
	l.accountsMu.RLock()
	a, ok := l.accounts[key]
	l.accountsMu.RUnlock()
	if ok {
		return a
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()
	if a, ok := l.accounts[key]; ok {
		return a
	}
	a = &account{}
	l.accounts[key] = a
	return a
}

// Credit adds funds to both available and total for an account, e.g. on a
// confirmed deposit.
func (l *Ledger) Credit(key AccountKey, amount float64) {
	a := l.entry(key)
	a.mu.Lock()
	a.available += amount
	a.total += amount
	a.mu.Unlock()
}

// Reserve attempts to move amount out of available without touching total.
// It returns false and leaves the account untouched if available funds are
// insufficient.
func (l *Ledger) Reserve(key AccountKey, amount float64) bool {
	a := l.entry(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.available < amount {
		return false
	}
	a.available -= amount
	return true
}

// Release returns a previously reserved amount to available. Callers should
// pass min(amount, currently reserved) when unwinding a partially-consumed
// reservation, the same defensive clamp the original engine applied on
// cancel.
func (l *Ledger) Release(key AccountKey, amount float64) {
	a := l.entry(key)
	a.mu.Lock()
	reserved := a.total - a.available
	if amount > reserved {
		amount = reserved
	}
	a.available += amount
	a.mu.Unlock()
}

// DebitTotal removes amount from total, lowering available only where it
// would otherwise exceed the new total. The withdrawal handler calls it right
// after Reserve, when the withdrawal is accepted for settlement.
func (l *Ledger) DebitTotal(key AccountKey, amount float64) {
	a := l.entry(key)
	a.mu.Lock()
	a.total -= amount
	if a.available > a.total {
		a.available = a.total
	}
	a.mu.Unlock()
}

// GetBalance returns the current balance view for one account.
func (l *Ledger) GetBalance(key AccountKey) Balance {
	a := l.entry(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	return Balance{
		Token:     key.Token,
		Available: a.available,
		Total:     a.total,
		Reserved:  a.total - a.available,
	}
}

// ListBalances returns every balance line for a user.
func (l *Ledger) ListBalances(user string) []Balance {
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()

	var out []Balance
	for key, a := range l.accounts {
		if key.User != user {
			continue
		}
		a.mu.Lock()
		out = append(out, Balance{
			Token:     key.Token,
			Available: a.available,
			Total:     a.total,
			Reserved:  a.total - a.available,
		})
		a.mu.Unlock()
	}
	return out
}

// AccountKeys returns every (user, token) pair the ledger currently knows
// about, used by the reconciler to drive its sweep.
func (l *Ledger) AccountKeys() []AccountKey {
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()
	keys := make([]AccountKey, 0, len(l.accounts))
	for k := range l.accounts {
		keys = append(keys, k)
	}
	return keys
}

// OnChainBalance returns the ledger's cached view of what the chain reports
// for an account.
func (l *Ledger) OnChainBalance(key AccountKey) float64 {
	l.onChainMu.RLock()
	defer l.onChainMu.RUnlock()
	return l.onChain[key]
}

// SetOnChainBalance overwrites the cached on-chain mirror for an account,
// called by the reconciler after it queries the chain client.
func (l *Ledger) SetOnChainBalance(key AccountKey, amount float64) {
	l.onChainMu.Lock()
	l.onChain[key] = amount
	l.onChainMu.Unlock()
}

// AdjustInternalBalances overwrites the shadow total for an account while
// preserving the outstanding reserved amount, the auto-correct path the
// reconciler takes for small drift. The new available never goes negative.
func (l *Ledger) AdjustInternalBalances(key AccountKey, newTotal float64) {
	a := l.entry(key)
	a.mu.Lock()
	reserved := a.total - a.available
	a.total = newTotal
	a.available = newTotal - reserved
	if a.available < 0 {
		a.available = 0
	}
	a.mu.Unlock()
}

// RecordWithdrawal registers a new withdrawal in the Pending state.
func (l *Ledger) RecordWithdrawal(id, user, token string, amount float64, to string) {
	rec := &WithdrawalRecord{
		ID:        id,
		User:      user,
		Token:     token,
		Amount:    amount,
		To:        to,
		Status:    WithdrawalPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	l.withdrawalsMu.Lock()
	l.withdrawals[id] = rec
	l.withdrawalsMu.Unlock()
}

// CompleteWithdrawal marks a withdrawal settled on-chain and records its
// transaction id. Balances are not changed here: total was already debited
// when the withdrawal was accepted for settlement.
func (l *Ledger) CompleteWithdrawal(id, user, token string, amount float64, txID string) {
	l.withdrawalsMu.Lock()
	if rec, ok := l.withdrawals[id]; ok {
		rec.Status = WithdrawalCompleted
		rec.TxID = txID
		rec.UpdatedAt = time.Now()
	}
	l.withdrawalsMu.Unlock()

	l.log.Info().Str("withdrawal_id", id).Str("tx_id", txID).Msg("withdrawal completed")
}

// FailWithdrawal marks a withdrawal failed and reverts it: the funds never
// left the account, so both available and total are restored by amount.
func (l *Ledger) FailWithdrawal(id, user, token string, amount float64, reason string) {
	key := AccountKey{User: user, Token: token}
	a := l.entry(key)
	a.mu.Lock()
	a.available += amount
	a.total += amount
	a.mu.Unlock()

	l.withdrawalsMu.Lock()
	if rec, ok := l.withdrawals[id]; ok {
		rec.Status = WithdrawalFailed
		rec.LastError = reason
		rec.UpdatedAt = time.Now()
	}
	l.withdrawalsMu.Unlock()

	l.log.Warn().Str("withdrawal_id", id).Str("reason", reason).Msg("withdrawal failed")
}

// Withdrawal returns a copy of the withdrawal record for id, if any.
func (l *Ledger) Withdrawal(id string) (WithdrawalRecord, bool) {
	l.withdrawalsMu.RLock()
	defer l.withdrawalsMu.RUnlock()
	rec, ok := l.withdrawals[id]
	if !ok {
		return WithdrawalRecord{}, false
	}
	return *rec, true
}

// FormatAmount renders amount the way the original ledger did: no decimals
// when the value is integral, six decimals otherwise.
func FormatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d", int64(amount))
	}
	return fmt.Sprintf("%.6f", amount)
}
