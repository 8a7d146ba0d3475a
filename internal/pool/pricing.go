package pool

import (
	"math"

	"github.com/holiman/uint256"
)

const feeDenominatorBps = 10000

// constantProductOut prices a swap under x*y=k, charging FeeRateBps out of
// the input amount before applying the invariant. All products that could
// overflow uint64 are carried in uint256.
func constantProductOut(amountIn, reserveIn, reserveOut uint64, feeBps uint32) (uint64, error) {
	amountInWithFee := new(uint256.Int).Mul(
		uint256.NewInt(amountIn),
		uint256.NewInt(uint64(feeDenominatorBps-feeBps)),
	)

	numerator := new(uint256.Int).Mul(amountInWithFee, uint256.NewInt(reserveOut))
	denominator := new(uint256.Int).Add(
		new(uint256.Int).Mul(uint256.NewInt(reserveIn), uint256.NewInt(feeDenominatorBps)),
		amountInWithFee,
	)
	if denominator.IsZero() {
		return 0, newErr(ErrInsufficientLiquidity, "empty pool")
	}

	out := new(uint256.Int).Div(numerator, denominator)
	if out.IsZero() {
		return 0, newErr(ErrInsufficientOutputAmount, "output amount too small")
	}
	if !out.IsUint64() || out.Uint64() >= reserveOut {
		return 0, newErr(ErrInsufficientLiquidity, "insufficient pool liquidity")
	}
	return out.Uint64(), nil
}

// stableSwapOut prices a swap for a StableSwap pool. When reserves are
// within 10% of parity it uses an amplified constant-sum blend; otherwise it
// falls back to the constant-product curve, the same hybrid the original
// engine used to keep pegged-asset swaps cheap near balance while staying
// safe away from it.
func stableSwapOut(amountIn, reserveIn, reserveOut uint64, feeBps uint32, amplification uint64) (uint64, error) {
	ratio := ratioPercent(reserveIn, reserveOut)
	if ratio >= 90 {
		// Amplified near-linear pricing: blend constant-sum and
		// constant-product proportional to the amplification coefficient.
		amountInWithFee := applyFeeBps(amountIn, feeBps)

		ampFactor := amplification
		if ampFactor == 0 {
			ampFactor = 1
		}

		linearOut := amountInWithFee
		if linearOut >= reserveOut {
			linearOut = reserveOut - 1
		}

		cpOut, err := constantProductOut(amountIn, reserveIn, reserveOut, feeBps)
		if err != nil {
			return 0, err
		}

		// Weighted blend: higher amplification leans harder on the linear
		// (constant-sum) price, approximating Curve's StableSwap invariant
		// without solving it exactly.
		weightLinear := new(uint256.Int).Mul(uint256.NewInt(linearOut), uint256.NewInt(ampFactor))
		weightCP := new(uint256.Int).Mul(uint256.NewInt(cpOut), uint256.NewInt(100))
		total := new(uint256.Int).Add(weightLinear, weightCP)
		denom := ampFactor + 100
		blended := new(uint256.Int).Div(total, uint256.NewInt(denom))

		if blended.IsZero() {
			return 0, newErr(ErrInsufficientOutputAmount, "output amount too small")
		}
		if !blended.IsUint64() || blended.Uint64() >= reserveOut {
			return 0, newErr(ErrInsufficientLiquidity, "insufficient pool liquidity")
		}
		return blended.Uint64(), nil
	}
	return constantProductOut(amountIn, reserveIn, reserveOut, feeBps)
}

// weightedPoolOut prices a swap for a Balancer-style weighted pool using the
// standard weighted-invariant formula. Exponentiation needs float64 (the
// weights make this an irrational-exponent problem with no exact integer
// formula), so this curve alone tolerates float imprecision, same as the
// original.
func weightedPoolOut(amountIn, reserveIn, reserveOut uint64, feeBps uint32, weightIn, weightOut uint8) (uint64, error) {
	if weightIn == 0 || weightOut == 0 {
		return 0, newErr(ErrInternal, "invalid pool weights")
	}
	amountInWithFee := float64(applyFeeBps(amountIn, feeBps))

	base := float64(reserveIn) / (float64(reserveIn) + amountInWithFee)
	exponent := float64(weightIn) / float64(weightOut)
	factor := 1 - math.Pow(base, exponent)

	out := float64(reserveOut) * factor
	if out <= 0 {
		return 0, newErr(ErrInsufficientOutputAmount, "output amount too small")
	}
	if out >= float64(reserveOut) {
		return 0, newErr(ErrInsufficientLiquidity, "insufficient pool liquidity")
	}
	return uint64(out), nil
}

func applyFeeBps(amount uint64, feeBps uint32) uint64 {
	kept := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(feeDenominatorBps-feeBps)))
	kept.Div(kept, uint256.NewInt(feeDenominatorBps))
	return kept.Uint64()
}

func ratioPercent(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	small, big := a, b
	if small > big {
		small, big = big, small
	}
	return small * 100 / big
}

// calculateInitialLiquidity computes LP tokens minted for the first deposit
// into a pool: sqrt(a*b), minus the permanently-burned MINIMUM_LIQUIDITY.
func calculateInitialLiquidity(amountA, amountB uint64) (uint64, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(amountA), uint256.NewInt(amountB))
	sqrtVal := integerSqrt(product)
	if !sqrtVal.IsUint64() || sqrtVal.Uint64() <= minimumLiquidity {
		return 0, newErr(ErrInsufficientLiquidityMinted, "initial liquidity below minimum")
	}
	return sqrtVal.Uint64() - minimumLiquidity, nil
}

// calculateLPMint computes LP tokens minted for a deposit into an existing
// pool: proportional to the smaller of the two deposit ratios against
// current reserves, guarding against one-sided deposits minting too much.
func calculateLPMint(amountA, amountB, reserveA, reserveB, totalSupply uint64) (uint64, error) {
	if totalSupply == 0 {
		return calculateInitialLiquidity(amountA, amountB)
	}

	mintFromA := mulDiv(amountA, totalSupply, reserveA)
	mintFromB := mulDiv(amountB, totalSupply, reserveB)

	minted := mintFromA
	if mintFromB < minted {
		minted = mintFromB
	}
	if minted == 0 {
		return 0, newErr(ErrInsufficientLiquidityMinted, "liquidity minted would be zero")
	}
	return minted, nil
}

// calculateOptimalAmounts forces a desired two-sided deposit onto the pool's
// current reserve ratio: compute b* = a_d * R_b / R_a, and use (a_d, b*) if
// b* fits within the desired b, otherwise scale a down instead. An empty
// pool has no ratio to match, so the desired amounts pass through unchanged.
func calculateOptimalAmounts(amountADesired, amountBDesired, reserveA, reserveB uint64) (amountA, amountB uint64) {
	if reserveA == 0 || reserveB == 0 {
		return amountADesired, amountBDesired
	}

	bOptimal := mulDiv(amountADesired, reserveB, reserveA)
	if bOptimal <= amountBDesired {
		return amountADesired, bOptimal
	}

	aOptimal := mulDiv(amountBDesired, reserveA, reserveB)
	return aOptimal, amountBDesired
}

// calculateRemoveAmounts computes the reserves returned for burning lpAmount
// LP tokens, proportional to the pool's current reserves.
func calculateRemoveAmounts(lpAmount, reserveA, reserveB, totalSupply uint64) (amountA, amountB uint64, err error) {
	if totalSupply == 0 || lpAmount == 0 {
		return 0, 0, newErr(ErrInsufficientLPTokens, "no LP tokens to burn")
	}
	amountA = mulDiv(lpAmount, reserveA, totalSupply)
	amountB = mulDiv(lpAmount, reserveB, totalSupply)
	if amountA == 0 && amountB == 0 {
		return 0, 0, newErr(ErrInsufficientLiquidityBurned, "burn amount too small")
	}
	return amountA, amountB, nil
}

func mulDiv(a, b, denom uint64) uint64 {
	if denom == 0 {
		return 0
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Div(product, uint256.NewInt(denom))
	if !product.IsUint64() {
		return math.MaxUint64
	}
	return product.Uint64()
}

// CalculatePriceImpact compares the execution price of a trade against the
// pool's current spot price, expressed as a percentage.
func CalculatePriceImpact(amountIn, amountOut, reserveIn, reserveOut uint64) float64 {
	if amountIn == 0 {
		return 0
	}
	executionPrice := float64(amountOut) / float64(amountIn)
	midPrice := float64(reserveOut) / float64(reserveIn)
	if midPrice == 0 {
		return 0
	}
	return math.Abs(executionPrice-midPrice) / midPrice * 100
}

// SpotPrice returns the pool's current mid price of tokenIn denominated in
// the other token.
func SpotPrice(reserveIn, reserveOut uint64) float64 {
	if reserveIn == 0 {
		return 0
	}
	return float64(reserveOut) / float64(reserveIn)
}

// integerSqrt computes floor(sqrt(n)) for a uint256 value via Newton's
// method, matching the original engine's IntegerSqrt trait.
func integerSqrt(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return uint256.NewInt(0)
	}
	x := new(uint256.Int).Set(n)
	one := uint256.NewInt(1)
	two := uint256.NewInt(2)

	y := new(uint256.Int).Add(new(uint256.Int).Div(x, two), one)
	for y.Lt(x) {
		x.Set(y)
		t := new(uint256.Int).Div(n, x)
		t.Add(t, x)
		y.Div(t, two)
	}
	return x
}
