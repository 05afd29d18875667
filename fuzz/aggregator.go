package fuzz

import (
	"fmt"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/dictionary"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/executor"
	"github.com/fuzzrig/evmfuzz/log"
	"github.com/fuzzrig/evmfuzz/runner"
)

// gasPair is one (gas, stipend) observation recorded for a fuzz case.
type gasPair struct {
	Gas     uint64
	Stipend uint64
}

// session is the mutable state the fuzz loop threads through one call to
// Fuzzer.Fuzz. It is single-threaded: the external runner
// drives iterations sequentially, so no locking is needed.
type session struct {
	firstCase          *Case
	gasByCase          []gasPair
	counterexampleSlot *CounterExample
	lastSuccessTraces  *calltrace.CallFrame
	mergedCoverage     executor.Coverage
	lastLogs           []evmtypes.Log
	labels             map[evmtypes.Address]string
}

// Fuzzer drives SingleShot across many iterations via an external
// property-based runner, classifying and aggregating outcomes as they
// arrive.
type Fuzzer struct {
	Executor   executor.Executor
	Dictionary *dictionary.Dictionary
	Runner     runner.Runner
	Sender     evmtypes.Address
	Target     evmtypes.Address
	ShouldFail bool

	// RevertErrors is the contract's custom-error ABI used to decode a
	// counter-example's revert reason.
	RevertErrors []abi.Function

	// Contracts resolves the target's name and function ABI for decoded
	// counter-example construction. May be nil; the
	// resulting BaseCounterExample still carries sender/target/calldata,
	// with an unresolved ContractName/Signature/DecodedArgs.
	Contracts *abi.Registry

	Logger *log.Logger
}

// New builds a Fuzzer with the given collaborators. Logger may be nil, in
// which case no logging occurs.
func New(exec executor.Executor, dict *dictionary.Dictionary, rnr runner.Runner, sender, target evmtypes.Address, shouldFail bool, revertErrors []abi.Function, contracts *abi.Registry, logger *log.Logger) *Fuzzer {
	return &Fuzzer{
		Executor:     exec,
		Dictionary:   dict,
		Runner:       rnr,
		Sender:       sender,
		Target:       target,
		ShouldFail:   shouldFail,
		RevertErrors: revertErrors,
		Contracts:    contracts,
		Logger:       logger,
	}
}

// reasonTooManyRejects is the fixed abort reason RapidRunner (and proptest
// before it) reports when the global-reject cap trips.
const reasonTooManyRejects = "Too many global rejects"

// Fuzz drives strategy through funcName's fuzz session, returning the
// aggregated Result. funcName is used only for logging.
func (f *Fuzzer) Fuzz(strategy runner.Strategy, funcName string) *Result {
	sess := &session{}
	if f.Logger != nil {
		f.Logger.Debug("fuzzing", "func", funcName, "target", f.Target.Hex(), "should_fail", f.ShouldFail)
	}

	testErr := f.Runner.Run(strategy, func(calldata []byte) *runner.TestCaseError {
		return f.runOne(sess, calldata)
	})

	return f.reduce(sess, testErr)
}

// runOne executes one candidate calldata and folds its outcome into sess,
// implementing the outcome classifier directly against the
// loop's mutable aggregator state.
func (f *Fuzzer) runOne(sess *session, calldata []byte) *runner.TestCaseError {
	c, ce, tcErr := SingleShot(f.Executor, f.Dictionary, f.Sender, f.Target, f.ShouldFail, calldata)
	if tcErr != nil {
		// FailedContractCall, EmptyChangeset or AssumeReject: neither
		// advances gasByCase nor overwrites the counter-example slot.
		return tcErr
	}

	if c != nil {
		if sess.firstCase == nil {
			sess.firstCase = c
		}
		sess.gasByCase = append(sess.gasByCase, gasPair{Gas: c.Gas, Stipend: c.Stipend})
		if c.Traces != nil {
			sess.lastSuccessTraces = c.Traces
		}
		sess.mergedCoverage = sess.mergedCoverage.Merge(c.Coverage)
		sess.lastLogs = c.Logs
		if c.Labels != nil {
			sess.labels = c.Labels
		}
		return nil
	}

	// ce != nil. Critical ordering: the counter-example must be recorded
	// into session state *before* returning Err(fail, ...),
	// because the external runner will re-invoke this closure for further
	// shrink attempts and each of those may overwrite counterexampleSlot
	// again -- last write wins, which is exactly "the smallest failing
	// input the runner found".
	sess.counterexampleSlot = ce
	if ce.RawResult != nil {
		sess.labels = mergeLabels(sess.labels, ce.RawResult.Labels)
	}

	reason := ""
	if ce.RawResult != nil {
		reason = abi.DecodeRevert(ce.RawResult.ReturnData, f.RevertErrors)
	}
	return runner.Fail(reason)
}

func mergeLabels(existing, incoming map[evmtypes.Address]string) map[evmtypes.Address]string {
	if len(incoming) == 0 {
		return existing
	}
	out := make(map[evmtypes.Address]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// reduce folds the session's accumulated state and the runner's terminal
// outcome into the final Result.
func (f *Fuzzer) reduce(sess *session, testErr *runner.TestError) *Result {
	res := &Result{
		FirstCase:   sess.firstCase,
		GasByCase:   sess.gasByCase,
		Coverage:    sess.mergedCoverage,
		Logs:        sess.lastLogs,
		DecodedLogs: DecodeConsoleLogs(sess.lastLogs),
		Labels:      sess.labels,
	}

	if testErr == nil {
		res.Success = true
		res.Traces = sess.lastSuccessTraces
		return res
	}

	res.Success = false

	switch testErr.Kind {
	case runner.ErrKindAbort:
		if testErr.Reason == reasonTooManyRejects {
			res.Reason = fmt.Sprintf("too many rejects (n = %d)", testErr.RejectCap)
		} else {
			res.Reason = testErr.Reason
		}
		return res

	case runner.ErrKindFail:
		if testErr.Reason != "" {
			res.Reason = testErr.Reason
		}
		// The counter-example is built from the loop's own stored slot,
		// never from testErr.Calldata: the runner's reported final input
		// is only guaranteed minimal, not guaranteed still-failing, since
		// rapid (like proptest) may re-run one extra stability check after
		// the true minimum.
		if sess.counterexampleSlot != nil {
			ce := sess.counterexampleSlot
			var traces *calltrace.CallFrame
			if ce.RawResult != nil {
				traces = ce.RawResult.Traces
				res.Traces = traces
			}
			contracts := f.Contracts
			if contracts == nil {
				contracts = abi.NewRegistry()
			}
			base, _ := BuildCounterExample(f.Sender, f.Target, ce.Calldata, contracts, traces)
			res.CounterExample = base
		}
		return res
	}

	return res
}
