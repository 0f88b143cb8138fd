package relay

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashtri/arbengine/pkg/logger"
)

func TestSignBody_HeaderShapeAndStability(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := NewClient("https://relay.example.test", key, logger.Nop())
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_callBundle","params":[]}`)

	sig1, err := c.signBody(body)
	require.NoError(t, err)
	sig2, err := c.signBody(body)
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2, "signing the same body twice must be deterministic (ECDSA nonce derivation aside, ecrecover must match)")

	parts := strings.SplitN(sig1, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.ToLower(c.signerAddr.Hex()), strings.ToLower(parts[0]))
	assert.True(t, strings.HasPrefix(parts[1], "0x"))
	// 65-byte signature -> 130 hex chars + "0x"
	assert.Len(t, parts[1], 132)
}

func TestSignBody_DifferentBodiesDifferentSignatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := NewClient("https://relay.example.test", key, logger.Nop())

	sig1, err := c.signBody([]byte("body-one"))
	require.NoError(t, err)
	sig2, err := c.signBody([]byte("body-two"))
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)
}

func TestSimulationResult_Reverted(t *testing.T) {
	clean := SimulationResult{Results: []simulatedTxResult{{TxHash: "0x1", GasUsed: 21000}}}
	assert.False(t, clean.Reverted())

	withError := SimulationResult{Results: []simulatedTxResult{{TxHash: "0x1", Error: "execution reverted"}}}
	assert.True(t, withError.Reverted())

	withRevert := SimulationResult{Results: []simulatedTxResult{{TxHash: "0x1", Revert: "0x08c379a0"}}}
	assert.True(t, withRevert.Reverted())
}
