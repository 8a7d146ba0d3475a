package api

import (
	"net/http"

	"github.com/driftline/dex-core/internal/orderengine"
	"github.com/driftline/dex-core/internal/pool"
)

// statusFor maps a typed component error to the one HTTP status it should
// produce at the boundary, translating errors exactly once rather than
// letting string-matching leak into every handler the way the teacher's
// handleGRPCError had to for lack of typed errors across the gRPC boundary.
func statusFor(err error) int {
	if ee, ok := err.(*orderengine.EngineError); ok {
		switch ee.Kind {
		case orderengine.ErrInvalidMarket:
			return http.StatusBadRequest
		case orderengine.ErrInsufficientBalance:
			return http.StatusUnprocessableEntity
		case orderengine.ErrOrderNotFound:
			return http.StatusNotFound
		case orderengine.ErrInternal:
			return http.StatusInternalServerError
		}
	}

	if pe, ok := err.(*pool.PoolErr); ok {
		switch pe.Kind {
		case pool.ErrPoolAlreadyExists:
			return http.StatusConflict
		case pool.ErrPoolNotFound:
			return http.StatusNotFound
		case pool.ErrPoolPaused:
			return http.StatusConflict
		case pool.ErrInvalidToken, pool.ErrZeroAmount,
			pool.ErrInsufficientInputAmount, pool.ErrInsufficientOutputAmount,
			pool.ErrInsufficientLiquidity, pool.ErrInsufficientLiquidityMinted,
			pool.ErrInsufficientLiquidityBurned, pool.ErrInsufficientLPTokens:
			return http.StatusUnprocessableEntity
		case pool.ErrInternal:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}
