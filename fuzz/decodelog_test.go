package fuzz

import (
	"math/big"
	"strings"
	"testing"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/evmtypes"
)

func TestDecodeConsoleLogsRecognizedEvent(t *testing.T) {
	encoded := abi.EncodeFunctionCall([4]byte{}, []abi.ABIValue{{Type: abi.ABIType{Kind: abi.ABIString}, StringVal: "hello"}})
	data := encoded[4:]
	logs := []evmtypes.Log{{Topics: []evmtypes.Hash{topic0("log(string)")}, Data: data}}

	out := DecodeConsoleLogs(logs)
	if len(out) != 1 || !strings.Contains(out[0], "hello") {
		t.Fatalf("expected a decoded log line containing \"hello\", got %+v", out)
	}
}

func TestDecodeConsoleLogsSkipsUnrecognizedTopic(t *testing.T) {
	logs := []evmtypes.Log{{Topics: []evmtypes.Hash{evmtypes.BytesToHash([]byte{0x01})}, Data: []byte{0x01}}}
	out := DecodeConsoleLogs(logs)
	if len(out) != 0 {
		t.Fatalf("expected no decoded lines for an unrecognized topic, got %+v", out)
	}
}

func TestDecodeConsoleLogsSkipsEmptyTopics(t *testing.T) {
	logs := []evmtypes.Log{{Data: []byte{0x01}}}
	out := DecodeConsoleLogs(logs)
	if len(out) != 0 {
		t.Fatalf("expected no decoded lines for a log with no topics, got %+v", out)
	}
}

func TestDecodeConsoleLogsPreservesOrder(t *testing.T) {
	first := abi.EncodeFunctionCall([4]byte{}, []abi.ABIValue{{Type: abi.ABIType{Kind: abi.ABIString}, StringVal: "first"}})[4:]
	second := abi.EncodeFunctionCall([4]byte{}, []abi.ABIValue{{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: big.NewInt(7)}})[4:]
	logs := []evmtypes.Log{
		{Topics: []evmtypes.Hash{topic0("log(string)")}, Data: first},
		{Topics: []evmtypes.Hash{evmtypes.BytesToHash([]byte{0xff})}}, // unrecognized, skipped
		{Topics: []evmtypes.Hash{topic0("log_uint(uint256)")}, Data: second},
	}
	out := DecodeConsoleLogs(logs)
	if len(out) != 2 || out[0] != "log: first" || out[1] != "log_uint: 7" {
		t.Fatalf("expected order-preserving best-effort decode to skip unknowns, got %+v", out)
	}
}
