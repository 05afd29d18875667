package runner

import (
	"testing"

	"pgregory.net/rapid"
)

// RapidRunner drives a Strategy through pgregory.net/rapid's built-in
// generate-and-shrink loop. It implements Runner.
//
// rapid.Check expects to run inside a *testing.T-managed goroutine; the
// idiomatic use is from this repository's own _test.go files. fuzzcli
// constructs a bare *testing.T for its standalone demonstration run since it
// has no enclosing `go test` binary.
type RapidRunner struct {
	t               *testing.T
	maxRejectStreak int
}

// NewRapidRunner creates a RapidRunner driven by t, aborting a run after
// maxRejectStreak consecutive KindReject iterations (mirrors proptest's
// max_global_rejects). A non-positive value defaults to 100.
func NewRapidRunner(t *testing.T, maxRejectStreak int) *RapidRunner {
	if maxRejectStreak <= 0 {
		maxRejectStreak = 100
	}
	return &RapidRunner{t: t, maxRejectStreak: maxRejectStreak}
}

// Run implements Runner by delegating iteration and shrinking to rapid.Check.
//
// The returned TestError's Calldata field is the runner's own final replay
// input, which after shrinking may not be the same input that first
// triggered the failure (rapid, like proptest, runs extra cases while
// shrinking). Callers that need the exact failing call must track it
// themselves from the run closure's invocations, not from this field.
func (r *RapidRunner) Run(strategy Strategy, run func(calldata []byte) *TestCaseError) *TestError {
	var outcome *TestError
	rejectStreak := 0

	rapid.Check(r.t, func(rt *rapid.T) {
		calldata := strategy.Generate(&rapidDrawer{t: rt})
		err := run(calldata)
		if err == nil {
			rejectStreak = 0
			return
		}

		switch err.Kind {
		case KindReject:
			rejectStreak++
			if rejectStreak >= r.maxRejectStreak {
				outcome = &TestError{Kind: ErrKindAbort, Reason: "Too many global rejects", RejectCap: r.maxRejectStreak}
			}
			rt.Skip(err.Reason)
		case KindFail:
			outcome = &TestError{Kind: ErrKindFail, Reason: err.Reason, Calldata: calldata}
			rt.Fatal(err.Reason)
		}
	})

	return outcome
}

// rapidDrawer adapts *rapid.T's generator-based draw API to the Drawer
// interface strategies are written against.
type rapidDrawer struct {
	t *rapid.T
}

func (d *rapidDrawer) Uint64Range(min, max uint64) uint64 {
	return rapid.Uint64Range(min, max).Draw(d.t, "uint64")
}

func (d *rapidDrawer) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	return rapid.SliceOfN(rapid.Byte(), n, n).Draw(d.t, "bytes")
}

func (d *rapidDrawer) Bool() bool {
	return rapid.Bool().Draw(d.t, "bool")
}
