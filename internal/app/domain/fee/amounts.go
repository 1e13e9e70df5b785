package fee

import "math/big"

// MulDiv returns floor(a * b / div) computed without intermediate overflow.
// Money math throughout the engine goes through this helper so amounts are
// always floored toward zero, never rounded up.
func MulDiv(a, b, div int64) int64 {
	if div == 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	quotient := new(big.Int).Quo(product, big.NewInt(div))
	return quotient.Int64()
}

// MulDivCeil returns ceil(a * b / div) for non-negative operands. Used where
// an upper bound must never round below the exact value.
func MulDivCeil(a, b, div int64) int64 {
	if div == 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	product.Add(product, big.NewInt(div-1))
	return new(big.Int).Quo(product, big.NewInt(div)).Int64()
}

// ApplyBps returns floor(amount * bps / 10_000).
func ApplyBps(amount, bps int64) int64 {
	return MulDiv(amount, bps, 10_000)
}

// USDToTokens converts a micro-USD amount to droplets at the given rate
// (micro-USD per whole token), flooring toward zero.
func USDToTokens(usdMicro, rateMicro int64) int64 {
	if rateMicro <= 0 {
		return 0
	}
	return MulDiv(usdMicro, TokenUnit, rateMicro)
}

// TokensToUSD converts droplets to micro-USD at the given rate, flooring
// toward zero.
func TokensToUSD(tokens, rateMicro int64) int64 {
	return MulDiv(tokens, rateMicro, TokenUnit)
}
