// Package audit is a best-effort, non-authoritative mirror of settlement
// activity into Postgres. It exists purely for operator visibility and
// compliance trails — nothing in this service ever reads balances or order
// state back out of it. The buffered-channel-plus-worker-pool-plus-backoff
// shape is carried over from the teacher's asyncWriteWorker, repurposed from
// ledger-of-record writes to pure audit logging, and split across three
// tables (withdrawals_audit, settlement_events, reconciliation_reports)
// instead of the teacher's single customers/requests/model_pricing set.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	queueDepth  = 4096
	workerCount = 4
	maxRetries  = 5
)

// EventKind distinguishes the audit record variants, each routed to its own
// table.
type EventKind string

const (
	EventWithdrawal     EventKind = "withdrawal"
	EventSettlement     EventKind = "settlement"
	EventReconciliation EventKind = "reconciliation"
)

// Event is one audit record queued for durable storage. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// withdrawal
	RequestID string
	User      string
	Token     string
	Amount    float64
	Status    string
	TxID      string

	// settlement (pool deposit/withdraw)
	OpID        string
	OpKindLabel string // "pool_deposit" or "pool_withdraw"

	// reconciliation
	Subject  string
	ShadowA  float64
	OnChainA float64
	Drift    float64
	Action   string

	Detail string
}

// Sink writes Events to Postgres asynchronously and drops them (with a log
// line) rather than applying backpressure to callers, since audit logging
// must never block settlement.
type Sink struct {
	log     zerolog.Logger
	db      *sql.DB
	queue   chan Event
	wg      sync.WaitGroup
	enabled bool
}

// New connects to postgresURL and starts the worker pool. If postgresURL is
// empty the sink runs in disabled mode: Record becomes a no-op, matching the
// "audit is optional" ambient-stack decision.
func New(postgresURL string, log zerolog.Logger) (*Sink, error) {
	s := &Sink{
		log:   log.With().Str("component", "audit").Logger(),
		queue: make(chan Event, queueDepth),
	}

	if postgresURL == "" {
		s.log.Info().Msg("audit sink disabled: no postgres url configured")
		return s, nil
	}

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s.db = db
	s.enabled = true

	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// Record enqueues an audit event. It never blocks: a full queue drops the
// event and logs a warning. A nil or disabled Sink is safe to call Record on.
func (s *Sink) Record(ev Event) {
	if s == nil || !s.enabled {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.log.Warn().Str("kind", string(ev.Kind)).Msg("audit: queue full, dropping event")
	}
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for ev := range s.queue {
		s.writeWithRetry(ev)
	}
}

func (s *Sink) writeWithRetry(ev Event) {
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := s.write(ev); err == nil {
			return
		} else if attempt == maxRetries-1 {
			s.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("audit: giving up after retries")
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (s *Sink) write(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	switch ev.Kind {
	case EventWithdrawal:
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO withdrawals_audit (request_id, user_id, token, amount, status, tx_id, detail, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, ev.RequestID, ev.User, ev.Token, ev.Amount, ev.Status, ev.TxID, ev.Detail, ev.Timestamp)
		return err

	case EventSettlement:
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settlement_events (op_id, kind, user_id, token, amount, status, detail, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, ev.OpID, ev.OpKindLabel, ev.User, ev.Token, ev.Amount, ev.Status, ev.Detail, ev.Timestamp)
		return err

	case EventReconciliation:
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reconciliation_reports (subject, shadow_a, on_chain_a, drift, action, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ev.Subject, ev.ShadowA, ev.OnChainA, ev.Drift, ev.Action, ev.Timestamp)
		return err

	default:
		return fmt.Errorf("audit: unknown event kind %q", ev.Kind)
	}
}

// Close drains the queue and closes the database connection.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	close(s.queue)
	s.wg.Wait()
	if s.db != nil {
		s.db.Close()
	}
}
