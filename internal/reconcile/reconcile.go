// Package reconcile periodically compares the shadow ledger and pool
// reserves against what the chain itself reports. Account drift within the
// dust threshold is auto-corrected and larger account drift is flagged for a
// human to look at; any pool reserve drift pauses the pool.
//
// The filtered original source's reconcile.rs is a 42-line stub that only
// logs an account count on a timer; main.rs references a fuller
// with_pool_support/reconcile_all_pools path that isn't present in the
// retrieved tree. This package is built directly from the specification's
// description of that property rather than transliterated from Rust — see
// DESIGN.md.
package reconcile

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftline/dex-core/internal/audit"
	"github.com/driftline/dex-core/internal/chain"
	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/metrics"
	"github.com/driftline/dex-core/internal/pool"
)

// AccountReport is the outcome of reconciling one account.
type AccountReport struct {
	User        string
	Token       string
	ShadowTotal float64
	OnChain     float64
	Drift       float64
	Corrected   bool
}

// PoolReport is the outcome of reconciling one pool.
type PoolReport struct {
	PoolID   string
	ReserveA uint64
	ReserveB uint64
	OnChainA uint64
	OnChainB uint64
	Paused   bool
}

// Reconciler runs the periodic drift sweep.
type Reconciler struct {
	log           zerolog.Logger
	ledger        *ledger.Ledger
	pools         *pool.Manager
	chain         chain.Client
	audit         *audit.Sink
	dustThreshold float64 // absolute account drift, in token units, auto-corrected rather than flagged

	lastAccountReports []AccountReport
	lastPoolReports    []PoolReport
}

// New constructs a Reconciler. dustThreshold is AUTO_CORRECT_THRESHOLD: an
// absolute difference in token units (e.g. 1e-4) below which an account
// mismatch is treated as float rounding dust rather than real divergence.
// Pool reconciliation applies no such tolerance — any nonzero reserve drift
// pauses the pool. auditSink may be nil.
func New(l *ledger.Ledger, p *pool.Manager, c chain.Client, auditSink *audit.Sink, dustThreshold float64, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		log:           log.With().Str("component", "reconcile").Logger(),
		ledger:        l,
		pools:         p,
		chain:         c,
		audit:         auditSink,
		dustThreshold: dustThreshold,
	}
}

// Run ticks every interval until ctx is cancelled, reconciling accounts and
// pools on each tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileAccounts(ctx)
			r.ReconcilePools(ctx)
		}
	}
}

// ReconcileAccounts compares every known account's shadow total against the
// chain's reported balance, auto-correcting drift within dustThreshold and
// logging anything larger for operator attention.
func (r *Reconciler) ReconcileAccounts(ctx context.Context) []AccountReport {
	keys := r.ledger.AccountKeys()
	reports := make([]AccountReport, 0, len(keys))

	for _, key := range keys {
		storageAccount := r.chain.DeriveStorageAccount(key.User, key.Token)
		onChain, err := r.chain.QueryBalance(ctx, storageAccount)
		if err != nil {
			r.log.Warn().Str("user", key.User).Str("token", key.Token).Err(err).Msg("reconcile: chain query failed")
			continue
		}
		r.ledger.SetOnChainBalance(key, onChain)

		bal := r.ledger.GetBalance(key)
		drift := math.Abs(bal.Total - onChain)
		metrics.ReconcileDrift.WithLabelValues(key.User, key.Token).Set(drift)

		report := AccountReport{
			User:        key.User,
			Token:       key.Token,
			ShadowTotal: bal.Total,
			OnChain:     onChain,
			Drift:       drift,
		}

		subject := key.String()
		if drift <= r.dustThreshold {
			if bal.Total != onChain {
				r.ledger.AdjustInternalBalances(key, onChain)
				report.Corrected = true
				r.log.Debug().Str("user", key.User).Str("token", key.Token).Float64("drift", drift).Msg("reconcile: auto-corrected dust")
				r.audit.Record(audit.Event{Kind: audit.EventReconciliation, Timestamp: time.Now(),
					Subject: subject, ShadowA: bal.Total, OnChainA: onChain, Drift: drift, Action: "corrected"})
			}
		} else {
			r.log.Warn().Str("user", key.User).Str("token", key.Token).Float64("shadow_total", bal.Total).Float64("on_chain", onChain).Float64("drift", drift).Msg("reconcile: drift exceeds tolerance, manual review required")
			r.audit.Record(audit.Event{Kind: audit.EventReconciliation, Timestamp: time.Now(),
				Subject: subject, ShadowA: bal.Total, OnChainA: onChain, Drift: drift, Action: "flagged"})
		}

		reports = append(reports, report)
	}

	r.lastAccountReports = reports
	return reports
}

// ReconcilePools compares every pool's reserves against the chain's report,
// queried by pool id, and auto-pauses any pool with nonzero drift on either
// reserve.
func (r *Reconciler) ReconcilePools(ctx context.Context) []PoolReport {
	snapshots := r.pools.List()
	reports := make([]PoolReport, 0, len(snapshots))

	for _, snap := range snapshots {
		onChainA, onChainB, err := r.chain.VerifyPoolReserves(ctx, snap.ID)
		if err != nil {
			r.log.Warn().Str("pool_id", snap.ID).Err(err).Msg("reconcile: pool reserve query failed")
			continue
		}

		_ = r.pools.UpdateReconciliation(snap.ID, onChainA, onChainB, nowUnix())

		// Pools tolerate zero drift: any nonzero mismatch on either reserve
		// pauses the pool, since a pool's reserves back live swap pricing and
		// "dust" there is never safe to auto-correct.
		driftA := int64(snap.ReserveA) - int64(onChainA)
		driftB := int64(snap.ReserveB) - int64(onChainB)
		worstDrift := math.Max(math.Abs(float64(driftA)), math.Abs(float64(driftB)))

		paused := snap.Paused
		if (driftA != 0 || driftB != 0) && !snap.Paused {
			if err := r.pools.Pause(snap.ID, "reconciliation detected reserve drift"); err == nil {
				paused = true
				metrics.ReconcileAutoPauses.Inc()
				r.audit.Record(audit.Event{Kind: audit.EventReconciliation, Timestamp: time.Now(),
					Subject: snap.ID, ShadowA: float64(snap.ReserveA), OnChainA: float64(onChainA), Drift: worstDrift, Action: "paused"})
			}
		}

		reports = append(reports, PoolReport{
			PoolID:   snap.ID,
			ReserveA: snap.ReserveA,
			ReserveB: snap.ReserveB,
			OnChainA: onChainA,
			OnChainB: onChainB,
			Paused:   paused,
		})
	}

	r.lastPoolReports = reports
	return reports
}

// LastReports returns the account and pool reports from the most recent
// sweep, for operators inspecting integrity without forcing a new pass.
func (r *Reconciler) LastReports() ([]AccountReport, []PoolReport) {
	return r.lastAccountReports, r.lastPoolReports
}

// nowUnix exists so the reconciler's only call to the current time is
// centralized and easy to stub in tests.
var nowUnix = func() int64 { return time.Now().Unix() }
