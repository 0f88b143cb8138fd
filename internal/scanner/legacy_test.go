package scanner

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/internal/types"
)

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenZ = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenW = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func TestThirdToken_MatchFound(t *testing.T) {
	tri := types.Triangle{TokenA: tokenX, TokenB: tokenY, TokenC: tokenZ}
	third, ok := thirdToken(tri, tokenX, tokenY)
	require.True(t, ok)
	assert.Equal(t, tokenZ, third)
}

func TestThirdToken_OrderIndependent(t *testing.T) {
	tri := types.Triangle{TokenA: tokenX, TokenB: tokenY, TokenC: tokenZ}
	third, ok := thirdToken(tri, tokenY, tokenX)
	require.True(t, ok)
	assert.Equal(t, tokenZ, third)
}

func TestThirdToken_NoMatch(t *testing.T) {
	tri := types.Triangle{TokenA: tokenX, TokenB: tokenY, TokenC: tokenZ}
	_, ok := thirdToken(tri, tokenX, tokenW)
	assert.False(t, ok)
}

func TestLegacyPathsForPool_BuildsValidPath(t *testing.T) {
	triangles := []types.Triangle{
		{TokenA: tokenX, TokenB: tokenY, TokenC: tokenZ, Priority: 1},
		{TokenA: tokenX, TokenB: tokenW, TokenC: tokenZ, Priority: 2}, // doesn't match pool pair
	}
	pool := types.Pool{Token0: tokenX, Token1: tokenY}
	poolAddr := common.HexToAddress("0x9999999999999999999999999999999999999999")

	paths := legacyPathsForPool(triangles, pool, poolAddr)
	require.Len(t, paths, 1)
	assert.Equal(t, tokenX, paths[0].TokenA)
	assert.Equal(t, tokenY, paths[0].TokenB)
	assert.Equal(t, tokenZ, paths[0].TokenC)
	assert.Equal(t, poolAddr, paths[0].TriggerPool)
}

func TestLegacyPathsForPool_NoMatchesReturnsEmpty(t *testing.T) {
	triangles := []types.Triangle{{TokenA: tokenX, TokenB: tokenW, TokenC: tokenZ}}
	pool := types.Pool{Token0: tokenX, Token1: tokenY}
	paths := legacyPathsForPool(triangles, pool, common.Address{})
	assert.Empty(t, paths)
}
