package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// concatSig renders the stable, bytewise-deterministic signature string
// described in spec.md §4.6: chain_id:start_token:pool1:pool2:pool3:block.
func concatSig(chainID uint64, startToken, pool1, pool2, pool3 common.Address, block uint64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(chainID, 10))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(startToken.Hex()))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(pool1.Hex()))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(pool2.Hex()))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(pool3.Hex()))
	b.WriteByte(':')
	b.WriteString(fmt.Sprintf("%d", block))
	return b.String()
}
