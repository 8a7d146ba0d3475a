// Package settlement is the typed settlement operation pipeline: withdrawals
// and pool deposits/withdrawals are enqueued here and drained by a single
// FIFO worker goroutine that talks to the chain client and updates the
// ledger once a result is known.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftline/dex-core/internal/audit"
	"github.com/driftline/dex-core/internal/chain"
	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/metrics"
)

// OpKind distinguishes the three settlement operation variants.
type OpKind int

const (
	OpWithdraw OpKind = iota
	OpPoolDeposit
	OpPoolWithdraw
)

// Op is a tagged settlement operation. Only the fields relevant to Kind are
// populated, the same closed-variant shape as the original's SettlementOp
// enum.
type Op struct {
	Kind OpKind

	ID     string
	User   string
	Token  string
	Amount float64

	// Withdraw only
	To string

	// PoolDeposit/PoolWithdraw only
	PoolStorageAccount string
	AmountGrains       uint64
}

// WithdrawResult is returned immediately by EnqueueWithdrawal; settlement
// itself completes asynchronously.
type WithdrawResult struct {
	RequestID string
	Status    string // "pending" or "failed"
}

// Queue is the settlement pipeline.
type Queue struct {
	log    zerolog.Logger
	ledger *ledger.Ledger
	chain  chain.Client
	audit  *audit.Sink
	ops    chan Op
}

// New starts the settlement worker goroutine. auditSink may be nil, in which
// case audit mirroring is simply skipped: Sink.Record is a no-op on a nil
// Sink, so tests that never construct a Sink can pass nil.
func New(ctx context.Context, l *ledger.Ledger, c chain.Client, auditSink *audit.Sink, log zerolog.Logger) *Queue {
	q := &Queue{
		log:    log.With().Str("component", "settlement").Logger(),
		ledger: l,
		chain:  c,
		audit:  auditSink,
		ops:    make(chan Op, 1024),
	}
	go q.run(ctx)
	return q
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-q.ops:
			q.process(ctx, op)
		}
	}
}

func (q *Queue) process(ctx context.Context, op Op) {
	switch op.Kind {
	case OpWithdraw:
		q.log.Info().Str("withdrawal_id", op.ID).Msg("processing withdrawal")
		txID, err := q.chain.SendOnBehalfLegacy(ctx, op.User, op.Token, op.Amount, op.To)
		if err != nil {
			q.log.Error().Str("withdrawal_id", op.ID).Err(err).Msg("withdrawal failed")
			q.ledger.FailWithdrawal(op.ID, op.User, op.Token, op.Amount, err.Error())
			metrics.WithdrawalsFailed.Inc()
			q.audit.Record(audit.Event{Kind: audit.EventWithdrawal, Timestamp: time.Now(),
				RequestID: op.ID, User: op.User, Token: op.Token, Amount: op.Amount, Status: "failed", Detail: err.Error()})
			return
		}
		q.log.Info().Str("withdrawal_id", op.ID).Str("tx_id", txID).Msg("withdrawal settled on-chain")
		q.ledger.CompleteWithdrawal(op.ID, op.User, op.Token, op.Amount, txID)
		metrics.WithdrawalsCompleted.Inc()
		q.audit.Record(audit.Event{Kind: audit.EventWithdrawal, Timestamp: time.Now(),
			RequestID: op.ID, User: op.User, Token: op.Token, Amount: op.Amount, Status: "completed", TxID: txID})

	case OpPoolDeposit:
		// Demo settlement: a production path would build a SEND block from
		// the user's storage account to the pool's, sign it with the
		// operator key, submit it, and wait for confirmation before
		// returning a real transaction id.
		txID := uuid.NewString()
		q.log.Info().Str("op_id", op.ID).Str("tx_id", txID).Str("pool_account", op.PoolStorageAccount).Msg("pool deposit settled on-chain")
		q.audit.Record(audit.Event{Kind: audit.EventSettlement, Timestamp: time.Now(),
			OpID: op.ID, OpKindLabel: "pool_deposit", User: op.User, Token: op.Token, Amount: float64(op.AmountGrains), Status: "settled", Detail: txID})

	case OpPoolWithdraw:
		txID := uuid.NewString()
		q.log.Info().Str("op_id", op.ID).Str("tx_id", txID).Str("pool_account", op.PoolStorageAccount).Msg("pool withdraw settled on-chain")
		q.audit.Record(audit.Event{Kind: audit.EventSettlement, Timestamp: time.Now(),
			OpID: op.ID, OpKindLabel: "pool_withdraw", User: op.User, Token: op.Token, Amount: float64(op.AmountGrains), Status: "settled", Detail: txID})
	}
}

// EnqueueWithdrawal records a pending withdrawal against the ledger and
// submits it to the settlement worker. If the queue is full the withdrawal
// is immediately marked failed, the same fail-fast behavior the original
// took on a channel send error.
func (q *Queue) EnqueueWithdrawal(user, token string, amount float64, to string) WithdrawResult {
	id := uuid.NewString()
	q.ledger.RecordWithdrawal(id, user, token, amount, to)

	op := Op{Kind: OpWithdraw, ID: id, User: user, Token: token, Amount: amount, To: to}

	select {
	case q.ops <- op:
		return WithdrawResult{RequestID: id, Status: "pending"}
	default:
		msg := "settlement queue full"
		q.log.Error().Str("withdrawal_id", id).Msg(msg)
		q.ledger.FailWithdrawal(id, user, token, amount, msg)
		return WithdrawResult{RequestID: id, Status: "failed"}
	}
}

// EnqueuePoolDeposit submits a pool deposit settlement, returning its id
// regardless of whether the enqueue succeeded (matching the original's
// fire-and-log behavior for pool operations).
func (q *Queue) EnqueuePoolDeposit(user, poolStorageAccount, token string, amountGrains uint64) string {
	id := uuid.NewString()
	op := Op{Kind: OpPoolDeposit, ID: id, User: user, Token: token, PoolStorageAccount: poolStorageAccount, AmountGrains: amountGrains}

	select {
	case q.ops <- op:
		q.log.Info().Str("op_id", id).Msg("pool deposit enqueued")
	default:
		q.log.Error().Str("op_id", id).Msg("failed to enqueue pool deposit")
	}
	return id
}

// EnqueuePoolWithdraw submits a pool withdrawal settlement.
func (q *Queue) EnqueuePoolWithdraw(poolStorageAccount, user, token string, amountGrains uint64) string {
	id := uuid.NewString()
	op := Op{Kind: OpPoolWithdraw, ID: id, User: user, Token: token, PoolStorageAccount: poolStorageAccount, AmountGrains: amountGrains}

	select {
	case q.ops <- op:
		q.log.Info().Str("op_id", id).Msg("pool withdraw enqueued")
	default:
		q.log.Error().Str("op_id", id).Msg("failed to enqueue pool withdraw")
	}
	return id
}
