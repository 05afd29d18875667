package fuzz

import (
	"sort"

	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/executor"
)

// Result is the immutable summary of one completed fuzz session.
type Result struct {
	FirstCase      *Case
	GasByCase      []gasPair
	Success        bool
	Reason         string
	CounterExample *BaseCounterExample
	Logs           []evmtypes.Log
	DecodedLogs    []string
	Labels         map[evmtypes.Address]string
	Traces         *calltrace.CallFrame
	Coverage       executor.Coverage
}

// Cases returns a FuzzedCases view over the session's recorded gas
// observations, sorted ascending by gas used.
func (r *Result) Cases() FuzzedCases {
	pairs := make([]gasPair, len(r.GasByCase))
	copy(pairs, r.GasByCase)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Gas < pairs[j].Gas })
	return FuzzedCases{pairs: pairs}
}

// MedianGas returns the median of gas_used (withStipend=true) or
// gas_used-stipend (withStipend=false, saturating at zero)
// §4.E "Statistics". The lower-middle element is used at even sizes. An
// empty result reports zero.
func (r *Result) MedianGas(withStipend bool) uint64 {
	values := r.sortedGasValues(withStipend)
	if len(values) == 0 {
		return 0
	}
	return values[(len(values)-1)/2]
}

// MeanGas returns the arithmetic mean of the same value set MedianGas
// sorts. An empty result reports zero.
func (r *Result) MeanGas(withStipend bool) uint64 {
	values := r.sortedGasValues(withStipend)
	if len(values) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range values {
		sum += v
	}
	return sum / uint64(len(values))
}

func (r *Result) sortedGasValues(withStipend bool) []uint64 {
	values := make([]uint64, len(r.GasByCase))
	for i, p := range r.GasByCase {
		if withStipend {
			values[i] = p.Gas
		} else {
			values[i] = saturatingSub(p.Gas, p.Stipend)
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// FuzzedCases is a sorted-by-gas immutable view over a session's recorded
// cases "FuzzedCases view", useful for reporting.
type FuzzedCases struct {
	pairs []gasPair
}

// Len returns the number of recorded cases.
func (c FuzzedCases) Len() int { return len(c.pairs) }

// Highest returns the (gas, stipend) pair with the largest gas value, the
// last element after the ascending sort.
func (c FuzzedCases) Highest() (gas, stipend uint64, ok bool) {
	if len(c.pairs) == 0 {
		return 0, 0, false
	}
	p := c.pairs[len(c.pairs)-1]
	return p.Gas, p.Stipend, true
}

// Lowest returns the (gas, stipend) pair with the smallest gas value, the
// first element after the ascending sort.
func (c FuzzedCases) Lowest() (gas, stipend uint64, ok bool) {
	if len(c.pairs) == 0 {
		return 0, 0, false
	}
	p := c.pairs[0]
	return p.Gas, p.Stipend, true
}

// HighestGas returns the highest gas observation, optionally net of its
// stipend. Subtraction is non-saturating: it relies on gas >= stipend for
// every recorded case, which the gas sort does not check.
func (c FuzzedCases) HighestGas(withStipend bool) uint64 {
	gas, stipend, ok := c.Highest()
	if !ok {
		return 0
	}
	if withStipend {
		return gas
	}
	return gas - stipend
}

// LowestGas returns the raw gas of the lowest-gas case (stipend is never
// subtracted here, per).
func (c FuzzedCases) LowestGas() uint64 {
	gas, _, ok := c.Lowest()
	if !ok {
		return 0
	}
	return gas
}
