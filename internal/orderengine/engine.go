// Package orderengine is the single-sequencer limit order engine. All order
// mutation flows through one goroutine reading from a command channel, the
// same shape the teacher's ledger used for its async write queue: a single
// owner of mutable state reached only via channel sends, so there is never a
// data race to reason about and never a lock to forget.
package orderengine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftline/dex-core/internal/ledger"
)

// ErrorKind classifies engine failures the way the original Rust engine's
// thiserror enum did, so the API layer can map each to one HTTP status.
type ErrorKind int

const (
	ErrInvalidMarket ErrorKind = iota
	ErrInsufficientBalance
	ErrInternal
	ErrOrderNotFound
)

// EngineError is a typed engine failure.
type EngineError struct {
	Kind ErrorKind
	Msg  string
}

func (e *EngineError) Error() string { return e.Msg }

func newErr(kind ErrorKind, msg string) *EngineError {
	return &EngineError{Kind: kind, Msg: msg}
}

// Side is which side of a market an order sits on.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// LimitOrder is a user's request to trade on a market.
type LimitOrder struct {
	Market   string
	Side     Side
	Price    float64
	Quantity float64
	TIF      string
}

// PlacedOrder is a LimitOrder once it has been accepted by the engine.
type PlacedOrder struct {
	ID             string
	Order          LimitOrder
	Status         string
	FilledQuantity float64
}

type openOrder struct {
	owner    string
	order    LimitOrder
	reserved float64
}

type placeCmd struct {
	user  string
	order LimitOrder
	resp  chan placeResult
}

type placeResult struct {
	placed PlacedOrder
	err    error
}

type cancelCmd struct {
	user string
	id   string
	resp chan error
}

// Engine owns the open-order book and serializes every mutation through a
// single goroutine.
type Engine struct {
	log     zerolog.Logger
	ledger  *ledger.Ledger
	cmds    chan interface{}
	openOrd map[string]*openOrder
}

// New starts the engine's sequencer goroutine and returns a handle to it.
// The supplied context's cancellation stops the sequencer.
func New(ctx context.Context, l *ledger.Ledger, log zerolog.Logger) *Engine {
	e := &Engine{
		log:     log.With().Str("component", "orderengine").Logger(),
		ledger:  l,
		cmds:    make(chan interface{}, 256),
		openOrd: make(map[string]*openOrder),
	}
	go e.run(ctx)
	return e
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-e.cmds:
			switch cmd := raw.(type) {
			case placeCmd:
				placed, err := e.handlePlace(cmd.user, cmd.order)
				cmd.resp <- placeResult{placed: placed, err: err}
			case cancelCmd:
				cmd.resp <- e.handleCancel(cmd.user, cmd.id)
			}
		}
	}
}

// PlaceOrder submits an order to the sequencer and waits for the result.
func (e *Engine) PlaceOrder(ctx context.Context, user string, order LimitOrder) (PlacedOrder, error) {
	resp := make(chan placeResult, 1)
	select {
	case e.cmds <- placeCmd{user: user, order: order, resp: resp}:
	case <-ctx.Done():
		return PlacedOrder{}, newErr(ErrInternal, "engine unavailable")
	}

	select {
	case r := <-resp:
		return r.placed, r.err
	case <-ctx.Done():
		return PlacedOrder{}, newErr(ErrInternal, "engine unavailable")
	}
}

// CancelOrder submits a cancellation to the sequencer and waits for the result.
func (e *Engine) CancelOrder(ctx context.Context, user, id string) error {
	resp := make(chan error, 1)
	select {
	case e.cmds <- cancelCmd{user: user, id: id, resp: resp}:
	case <-ctx.Done():
		return newErr(ErrInternal, "engine unavailable")
	}

	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return newErr(ErrInternal, "engine unavailable")
	}
}

// parseMarket splits "BASE/QUOTE" into its two legs.
func parseMarket(market string) (base, quote string, err error) {
	parts := strings.Split(market, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("market must be formatted BASE/QUOTE")
	}
	return parts[0], parts[1], nil
}

func (e *Engine) handlePlace(user string, order LimitOrder) (PlacedOrder, error) {
	base, quote, err := parseMarket(order.Market)
	if err != nil {
		return PlacedOrder{}, newErr(ErrInvalidMarket, err.Error())
	}

	var reserveToken string
	var reserveAmount float64
	switch order.Side {
	case Buy:
		reserveToken = quote
		reserveAmount = order.Price * order.Quantity
	case Sell:
		reserveToken = base
		reserveAmount = order.Quantity
	default:
		return PlacedOrder{}, newErr(ErrInvalidMarket, "side must be buy or sell")
	}

	key := ledger.AccountKey{User: user, Token: reserveToken}
	if !e.ledger.Reserve(key, reserveAmount) {
		return PlacedOrder{}, newErr(ErrInsufficientBalance, "insufficient balance to reserve order")
	}

	id := uuid.NewString()
	e.openOrd[id] = &openOrder{owner: user, order: order, reserved: reserveAmount}

	e.log.Info().Str("order_id", id).Str("user", user).Str("market", order.Market).Msg("order placed")

	return PlacedOrder{
		ID:             id,
		Order:          order,
		Status:         "open",
		FilledQuantity: 0,
	}, nil
}

func (e *Engine) handleCancel(user, id string) error {
	ord, ok := e.openOrd[id]
	if !ok {
		return newErr(ErrOrderNotFound, "order not found")
	}

	// An owner mismatch is reported as Internal rather than a distinguishable
	// "forbidden" to avoid confirming the order's existence to a caller who
	// doesn't own it. The check runs before the order is removed, so on a
	// mismatch the order stays open and its reservation is untouched.
	if ord.owner != user {
		return newErr(ErrInternal, "cancel failed")
	}

	delete(e.openOrd, id)

	base, quote, err := parseMarket(ord.order.Market)
	if err != nil {
		return newErr(ErrInternal, "cancel failed")
	}

	var releaseToken string
	switch ord.order.Side {
	case Buy:
		releaseToken = quote
	case Sell:
		releaseToken = base
	}

	e.ledger.Release(ledger.AccountKey{User: user, Token: releaseToken}, ord.reserved)
	e.log.Info().Str("order_id", id).Str("user", user).Msg("order cancelled")
	return nil
}

// ParsePrice and ParseQuantity parse order fields submitted as decimal
// strings over the wire, mirroring the original models' string-typed
// LimitOrder fields.
func ParsePrice(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
func ParseQuantity(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
