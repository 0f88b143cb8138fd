package ethrpc

import "strings"

// stringsReader is a tiny convenience wrapper so abi.JSON call sites read
// naturally as "parse this JSON literal" rather than juggling io.Reader
// construction inline.
func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }

// multicall3ABIJSON is the subset of Multicall3's ABI this package needs:
// the aggregate3(Call3[]) -> (Result[]) batch-call entry point.
const multicall3ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bool", "name": "allowFailure", "type": "bool"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call3[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate3",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  }
]`
