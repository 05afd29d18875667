package fuzz

import (
	"math/big"
	"testing"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/executor"
	"github.com/fuzzrig/evmfuzz/log"
	"github.com/fuzzrig/evmfuzz/runner"
)

// scriptedRunner replays a fixed sequence of calldata through run, then
// reports a caller-supplied final TestError -- deliberately decoupled from
// what run actually observed, so tests can assert the aggregator trusts
// its own stored state over the runner's reported final input. A final
// Fail with an empty Reason carries the reason of the last failing call,
// as a real runner reports it.
type scriptedRunner struct {
	calls [][]byte
	final *runner.TestError
}

func (r *scriptedRunner) Run(strategy runner.Strategy, run func(calldata []byte) *runner.TestCaseError) *runner.TestError {
	lastFailReason := ""
	for _, c := range r.calls {
		if tcErr := run(c); tcErr != nil && tcErr.Kind == runner.KindFail {
			lastFailReason = tcErr.Reason
		}
	}
	if r.final != nil && r.final.Kind == runner.ErrKindFail && r.final.Reason == "" {
		final := *r.final
		final.Reason = lastFailReason
		return &final
	}
	return r.final
}

func newFuzzerFor(exec executor.Executor, rnr runner.Runner, shouldFail bool) *Fuzzer {
	dict := newTestDict()
	sender := evmtypes.BytesToAddress([]byte{0x01})
	target := evmtypes.BytesToAddress([]byte{0x02})
	return New(exec, dict, rnr, sender, target, shouldFail, nil, nil, log.Default())
}

func TestFuzzSuccessSessionReportsGasStats(t *testing.T) {
	exec := executor.NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x02})
	exec.Deploy(target, "Noop", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		return executor.ScriptedResult{GasUsed: 21000}
	})

	rnr := &scriptedRunner{
		calls: [][]byte{{0xaa, 0xbb, 0xcc, 0xdd}, {0x01, 0x02, 0x03, 0x04}},
		final: nil,
	}
	f := newFuzzerFor(exec, rnr, false)
	res := f.Fuzz(nil, "noop")

	if !res.Success {
		t.Fatalf("expected success, got reason=%q", res.Reason)
	}
	if len(res.GasByCase) != 2 {
		t.Fatalf("expected 2 recorded cases, got %d", len(res.GasByCase))
	}
	if res.MedianGas(true) != 21000 || res.MeanGas(true) != 21000 {
		t.Errorf("expected median/mean gas 21000, got median=%d mean=%d", res.MedianGas(true), res.MeanGas(true))
	}
	if res.CounterExample != nil {
		t.Error("expected no counter-example on a successful session")
	}
	if res.FirstCase == nil {
		t.Error("expected FirstCase to be recorded")
	}
	if res.Traces == nil {
		t.Error("expected the last successful case's trace to be retained")
	}
}

func TestFuzzStoresCounterExampleNotRunnersFinalInput(t *testing.T) {
	exec := executor.NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x02})
	exec.Deploy(target, "Reverter", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		if len(calldata) > 0 && calldata[0] == 0xff {
			return executor.ScriptedResult{Revert: true, ExitReason: "threshold"}
		}
		return executor.ScriptedResult{GasUsed: 21000}
	})

	firstFail := []byte{0xff, 0x09, 0x09, 0x09}
	lastFail := []byte{0xff, 0x01, 0x01, 0x01} // the "shrunk" failing input
	stabilityCheck := []byte{0x00, 0x00, 0x00, 0x00} // succeeds, runner's extra check

	rnr := &scriptedRunner{
		calls: [][]byte{firstFail, lastFail, stabilityCheck},
		final: &runner.TestError{
			Kind:     runner.ErrKindFail,
			Reason:   "threshold",
			Calldata: []byte{0xff, 0xff, 0xff, 0xff}, // deliberately NOT lastFail
		},
	}
	f := newFuzzerFor(exec, rnr, false)
	res := f.Fuzz(nil, "revertsAbove")

	if res.Success {
		t.Fatal("expected a failed session")
	}
	if res.CounterExample == nil {
		t.Fatal("expected a counter-example")
	}
	if string(res.CounterExample.Calldata) != string(lastFail) {
		t.Errorf("expected counter-example calldata to be the loop's stored slot %x, got %x", lastFail, res.CounterExample.Calldata)
	}
}

func TestFuzzShouldFailInversionSucceedsOnRevert(t *testing.T) {
	exec := executor.NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x02})
	exec.Deploy(target, "AlwaysReverts", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		return executor.ScriptedResult{Revert: true, GasUsed: 30000}
	})

	rnr := &scriptedRunner{calls: [][]byte{{0x01, 0x02, 0x03, 0x04}, {0x05, 0x06, 0x07, 0x08}}}
	f := newFuzzerFor(exec, rnr, true)
	res := f.Fuzz(nil, "alwaysReverts")

	if !res.Success {
		t.Fatalf("expected success when should_fail=true and every call reverts, got reason=%q", res.Reason)
	}
	if len(res.GasByCase) != 2 {
		t.Errorf("expected 2 recorded cases, got %d", len(res.GasByCase))
	}
	if res.CounterExample != nil {
		t.Error("expected no counter-example")
	}
}

func TestFuzzTooManyRejectsReason(t *testing.T) {
	exec := executor.NewMemExecutor()
	rnr := &scriptedRunner{
		final: &runner.TestError{Kind: runner.ErrKindAbort, Reason: "Too many global rejects", RejectCap: 100},
	}
	f := newFuzzerFor(exec, rnr, false)
	res := f.Fuzz(nil, "alwaysRejects")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Reason != "too many rejects (n = 100)" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
	if res.CounterExample != nil {
		t.Error("an abort must never produce a counter-example")
	}
}

func TestFuzzEmptyChangesetAbortsSession(t *testing.T) {
	rnr := &scriptedRunner{
		calls: [][]byte{{0x01, 0x02, 0x03, 0x04}},
		final: &runner.TestError{Kind: runner.ErrKindFail, Reason: ReasonEmptyChangeset},
	}
	f := newFuzzerFor(&nilChangesetExecutor{}, rnr, false)
	res := f.Fuzz(nil, "misconfigured")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Reason != ReasonEmptyChangeset {
		t.Errorf("expected reason %q, got %q", ReasonEmptyChangeset, res.Reason)
	}
}

func TestFuzzAssumeRejectNeverRecordedAsCaseOrCounterExample(t *testing.T) {
	exec := executor.NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x02})
	exec.Deploy(target, "Assumer", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		if len(calldata) > 0 && calldata[0]%2 == 0 {
			return executor.ScriptedResult{ReturnData: AssumeMagicReturnCode[:]}
		}
		return executor.ScriptedResult{Revert: true}
	})

	rnr := &scriptedRunner{
		calls: [][]byte{{0x00, 0, 0, 0}, {0x02, 0, 0, 0}, {0x01, 0, 0, 0}},
		final: &runner.TestError{Kind: runner.ErrKindFail, Reason: "reverted", Calldata: []byte{0x01, 0, 0, 0}},
	}
	f := newFuzzerFor(exec, rnr, false)
	res := f.Fuzz(nil, "halfAssume")

	if len(res.GasByCase) != 0 {
		t.Errorf("assume-rejected iterations must not be recorded as cases, got %d", len(res.GasByCase))
	}
	if res.CounterExample == nil || string(res.CounterExample.Calldata) != string([]byte{0x01, 0, 0, 0}) {
		t.Errorf("expected the one reverting (non-assume) iteration as the counter-example, got %+v", res.CounterExample)
	}
}

func TestFuzzDecodesRevertReason(t *testing.T) {
	errFn := abi.Function{Name: "Threshold", Inputs: []abi.ABIType{{Kind: abi.ABIUint256}}}
	revertData := abi.EncodeFunctionCall(errFn.ShortSignature(), []abi.ABIValue{{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: big.NewInt(11)}})

	exec := executor.NewMemExecutor()
	target := evmtypes.BytesToAddress([]byte{0x02})
	exec.Deploy(target, "Checked", big.NewInt(0), func(s evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		return executor.ScriptedResult{Revert: true, ReturnData: revertData}
	})

	rnr := &scriptedRunner{calls: [][]byte{{0x01, 0x02, 0x03, 0x04}}, final: &runner.TestError{Kind: runner.ErrKindFail}}
	f := newFuzzerFor(exec, rnr, false)
	f.RevertErrors = []abi.Function{errFn}
	res := f.Fuzz(nil, "checked")

	if res.Reason == "" {
		t.Fatal("expected a decoded revert reason")
	}
}
