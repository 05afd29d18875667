package fuzz

import (
	"fmt"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/crypto"
	"github.com/fuzzrig/evmfuzz/evmtypes"
)

// consoleLogSignatures are the DSTest logging-event and Hardhat
// console.log signatures this decoder recognizes, keyed by topic0. Only a
// handful of the most common overloads are covered; unrecognized events
// are skipped rather than treated as an error.
var consoleLogSignatures = map[evmtypes.Hash]struct {
	name string
	args []abi.ABIType
}{
	topic0("log(string)"):                   {"log", []abi.ABIType{{Kind: abi.ABIString}}},
	topic0("log_named_string(string,string)"): {"log_named_string", []abi.ABIType{{Kind: abi.ABIString}, {Kind: abi.ABIString}}},
	topic0("log_uint(uint256)"):              {"log_uint", []abi.ABIType{{Kind: abi.ABIUint256}}},
	topic0("log_named_uint(string,uint256)"): {"log_named_uint", []abi.ABIType{{Kind: abi.ABIString}, {Kind: abi.ABIUint256}}},
	topic0("log_int(int256)"):                {"log_int", []abi.ABIType{{Kind: abi.ABIInt256}}},
	topic0("log_address(address)"):           {"log_address", []abi.ABIType{{Kind: abi.ABIAddress}}},
	topic0("log_bytes(bytes)"):                {"log_bytes", []abi.ABIType{{Kind: abi.ABIBytes}}},
}

// topic0 computes an event's topic0: the full 32-byte Keccak hash of its
// canonical signature (unlike a function selector, which truncates to 4
// bytes).
func topic0(signature string) evmtypes.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// DecodeConsoleLogs decodes every recognized DSTest/Hardhat console logging
// event in logs into a human-readable line, in call order.
func DecodeConsoleLogs(logs []evmtypes.Log) []string {
	var out []string
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		sig, ok := consoleLogSignatures[lg.Topics[0]]
		if !ok {
			continue
		}
		vals, err := abi.DecodeFunctionResult(lg.Data, sig.args)
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", sig.name, abi.FormatArgs(vals)))
	}
	return out
}
