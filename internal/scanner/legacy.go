package scanner

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/flashtri/arbengine/internal/types"
)

// legacyPathsForPool resolves the legacy Triangle fallback (spec.md §3's
// "used only when no PoolPath mappings are registered") into synthetic
// PoolPath values the Evaluator can consume unchanged.
//
// A Triangle only names an unordered {A,B,C} token set, not a direction.
// Since the triggering pool fixes one edge of the cycle (its token0/token1
// pair), the Scanner picks the triangle's third token as token_c and
// orders token_a/token_b so that token_a is the pool's token0 — a fixed,
// deterministic choice rather than trying both directions, trading
// completeness for predictable, non-duplicated evaluation.
func legacyPathsForPool(triangles []types.Triangle, pool types.Pool, triggerPool common.Address) []types.PoolPath {
	var out []types.PoolPath
	for _, tri := range triangles {
		third, ok := thirdToken(tri, pool.Token0, pool.Token1)
		if !ok {
			continue
		}
		path := types.PoolPath{
			PathName:    "legacy:" + tri.TokenA.Hex() + ":" + tri.TokenB.Hex() + ":" + tri.TokenC.Hex(),
			TriggerPool: triggerPool,
			TokenA:      pool.Token0,
			TokenB:      pool.Token1,
			TokenC:      third,
			Priority:    tri.Priority,
		}
		if path.Validate() == nil {
			out = append(out, path)
		}
	}
	return out
}

// thirdToken reports whether triangle tri contains both a and b as two of
// its three tokens, returning the remaining one.
func thirdToken(tri types.Triangle, a, b common.Address) (common.Address, bool) {
	tokens := [3]common.Address{tri.TokenA, tri.TokenB, tri.TokenC}
	hasA, hasB := false, false
	var third common.Address
	thirdSet := false
	for _, t := range tokens {
		switch {
		case t == a:
			hasA = true
		case t == b:
			hasB = true
		default:
			third = t
			thirdSet = true
		}
	}
	if hasA && hasB && thirdSet {
		return third, true
	}
	return common.Address{}, false
}
