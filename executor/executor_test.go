package executor

import (
	"math/big"
	"testing"

	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/evmtypes"
)

func TestMemExecutorCallRawSuccess(t *testing.T) {
	m := NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x01})
	sender := evmtypes.BytesToAddress([]byte{0x02})
	m.FundAccount(sender, big.NewInt(100))

	m.Deploy(target, "Counter", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) ScriptedResult {
		return ScriptedResult{
			GasUsed: 21000,
			StorageWrites: map[evmtypes.Hash]evmtypes.Hash{
				evmtypes.BytesToHash([]byte{0x01}): evmtypes.BytesToHash([]byte{0x99}),
			},
		}
	})

	res, err := m.CallRaw(sender, target, []byte{0xaa, 0xbb}, big.NewInt(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reverted {
		t.Error("expected non-reverted result")
	}
	if res.GasUsed != 21000 {
		t.Errorf("expected gas used 21000, got %d", res.GasUsed)
	}
	if len(res.StateChangeset.AccountDiffs) != 1 {
		t.Fatalf("expected 1 account diff, got %d", len(res.StateChangeset.AccountDiffs))
	}
	if res.Traces == nil {
		t.Fatal("expected CallRaw to synthesize a trace frame")
	}
	if res.Traces.Caller != sender || res.Traces.To != target {
		t.Errorf("expected trace caller/to %s/%s, got %s/%s", sender.Hex(), target.Hex(), res.Traces.Caller.Hex(), res.Traces.To.Hex())
	}
	if res.Traces.GasUsed != 21000 {
		t.Errorf("expected trace GasUsed 21000, got %d", res.Traces.GasUsed)
	}
}

func TestMemExecutorCallRawHonorsScriptedTraces(t *testing.T) {
	m := NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x01})
	sender := evmtypes.BytesToAddress([]byte{0x02})

	override := &calltrace.CallFrame{Type: calltrace.FrameDelegateCall, GasUsed: 999}
	m.Deploy(target, "Scripted", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) ScriptedResult {
		return ScriptedResult{GasUsed: 21000, Traces: override}
	})

	res, err := m.CallRaw(sender, target, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Traces != override {
		t.Errorf("expected the scripted override trace to be used, got %+v", res.Traces)
	}
}

func TestMemExecutorCallRawUnknownAddress(t *testing.T) {
	m := NewMemExecutor()
	_, err := m.CallRaw(evmtypes.Address{}, evmtypes.BytesToAddress([]byte{0x05}), nil, nil)
	if err != ErrNoContractAt {
		t.Errorf("expected ErrNoContractAt, got %v", err)
	}
}

func TestMemExecutorValueTransfer(t *testing.T) {
	m := NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x01})
	sender := evmtypes.BytesToAddress([]byte{0x02})
	m.FundAccount(sender, big.NewInt(1000))
	m.Deploy(target, "Vault", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) ScriptedResult {
		return ScriptedResult{}
	})

	_, err := m.CallRaw(sender, target, nil, big.NewInt(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reader := m.MemDB()
	if got := reader.BalanceOf(sender); got.Cmp(big.NewInt(700)) != 0 {
		t.Errorf("sender balance: expected 700, got %s", got)
	}
	if got := reader.BalanceOf(target); got.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("target balance: expected 300, got %s", got)
	}
}

func TestMemExecutorIsSuccessShouldFailInversion(t *testing.T) {
	m := NewMemExecutor()
	addr := evmtypes.BytesToAddress([]byte{0x01})

	if !m.IsSuccess(addr, false, nil, false) {
		t.Error("non-reverted call with should_fail=false should be success")
	}
	if m.IsSuccess(addr, true, nil, false) {
		t.Error("reverted call with should_fail=false should not be success")
	}
	if m.IsSuccess(addr, false, nil, true) {
		t.Error("non-reverted call with should_fail=true should not be success")
	}
	if !m.IsSuccess(addr, true, nil, true) {
		t.Error("reverted call with should_fail=true should be success")
	}
}

func TestMemExecutorActiveForkDBIsNil(t *testing.T) {
	m := NewMemExecutor()
	if m.ActiveForkDB() != nil {
		t.Error("MemExecutor should never report an active fork db")
	}
}

func TestMemExecutorStorageAt(t *testing.T) {
	m := NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x01})
	sender := evmtypes.BytesToAddress([]byte{0x02})
	slot := evmtypes.BytesToHash([]byte{0x01})
	val := evmtypes.BytesToHash([]byte{0x42})

	m.Deploy(target, "", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) ScriptedResult {
		return ScriptedResult{StorageWrites: map[evmtypes.Hash]evmtypes.Hash{slot: val}}
	})

	if _, err := m.CallRaw(sender, target, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := m.MemDB().StorageAt(target)
	if got[slot] != val {
		t.Errorf("expected storage slot %x to be %x, got %x", slot, val, got[slot])
	}
}
