// Package fuzz implements the core single-call property fuzzing loop:
// the single-shot runner, the outcome classifier, the fuzz
// loop/aggregator, the result model, and decoded counter-example
// construction. Everything else in this module (abi, dictionary, strategy,
// executor, runner) is a collaborator consumed here.
package fuzz

import (
	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/dictionary"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/executor"
	"github.com/fuzzrig/evmfuzz/runner"
)

// AssumeMagicReturnCode is the fixed 32-byte sentinel a contract's
// vm.assume-style cheat code returns to signal "discard this input, draw
// another": the ASCII bytes "FOUNDRY::ASSUME" right-padded
// with zeros. It is computed once here and must never be re-derived.
var AssumeMagicReturnCode = func() [32]byte {
	var b [32]byte
	copy(b[:], []byte("FOUNDRY::ASSUME"))
	return b
}()

// Error identifiers are stable strings, surfaced as the Reason of a
// runner.TestCaseError or runner.TestError.
const (
	ReasonFailedContractCall = "failed contract call"
	ReasonEmptyChangeset     = "empty changeset"
	ReasonAssumeReject       = "assume rejected"
)

// Case is a recorded successful fuzz iteration.
type Case struct {
	Calldata    []byte
	Gas         uint64
	Stipend     uint64
	Traces      *calltrace.CallFrame
	Coverage    executor.Coverage
	Breakpoints map[byte]executor.Breakpoint
	Logs        []evmtypes.Log
	Labels      map[evmtypes.Address]string
}

// CounterExample is a recorded failing fuzz iteration, kept exactly as
// produced by the single-shot runner (before any decoding).
type CounterExample struct {
	ExitReason  string
	Calldata    []byte
	RawResult   *executor.RawCallResult
	Breakpoints map[byte]executor.Breakpoint
}

// SingleShot executes one candidate calldata against target and classifies
// the outcome, in order:
//  1. issue the raw call
//  2. surface infrastructure failures as Fail
//  3. require a state changeset or surface EmptyChangeset as Fail
//  4. absorb logs/changeset into dict unconditionally, before classifying
//  5. check the assume-reject sentinel and surface Reject
//  6. ask the executor for success given shouldFail
//  7. return a Case on success, a CounterExample on failure
//
// On a Reject or Fail outcome, SingleShot returns (nil, nil,
// *runner.TestCaseError) so the caller drives the external runner's
// reject/shrink machinery; on success it returns the Case.
func SingleShot(
	exec executor.Executor,
	dict *dictionary.Dictionary,
	sender, target evmtypes.Address,
	shouldFail bool,
	calldata []byte,
) (*Case, *CounterExample, *runner.TestCaseError) {
	raw, err := exec.CallRaw(sender, target, calldata, nil)
	if err != nil {
		return nil, nil, runner.Fail(ReasonFailedContractCall)
	}
	if raw.StateChangeset == nil {
		return nil, nil, runner.Fail(ReasonEmptyChangeset)
	}

	// Unconditional, before classification: both successful and reverting
	// runs contribute to the dictionary.
	if dict != nil {
		dict.Absorb(raw.StateChangeset, raw.Logs)
	}

	if len(raw.ReturnData) == 32 && [32]byte(raw.ReturnData[:32]) == AssumeMagicReturnCode {
		return nil, nil, runner.Reject(ReasonAssumeReject)
	}

	if exec.IsSuccess(target, raw.Reverted, raw.StateChangeset, shouldFail) {
		return &Case{
			Calldata:    calldata,
			Gas:         raw.GasUsed,
			Stipend:     raw.Stipend,
			Traces:      raw.Traces,
			Coverage:    raw.Coverage,
			Breakpoints: raw.Breakpoints,
			Logs:        raw.Logs,
			Labels:      raw.Labels,
		}, nil, nil
	}

	return nil, &CounterExample{
		ExitReason:  raw.ExitReason,
		Calldata:    calldata,
		RawResult:   raw,
		Breakpoints: raw.Breakpoints,
	}, nil
}
