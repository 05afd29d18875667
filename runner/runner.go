// Package runner abstracts the property-based test harness the fuzz core
// is driven by, mirroring proptest's TestRunner/TestCaseError/TestError
// taxonomy as a small set of Go interfaces and types, with a production
// adapter over pgregory.net/rapid in rapid_runner.go.
package runner

// TestCaseErrorKind distinguishes a single-iteration failure from a
// single-iteration rejection within one Runner.Run call.
type TestCaseErrorKind int

const (
	// KindFail means the iteration's assertion failed; the Runner should
	// treat this input as (or shrink towards) a counter-example.
	KindFail TestCaseErrorKind = iota
	// KindReject means the iteration should be discarded and retried with
	// a new input, without counting as a failure (the vm.assume / global
	// reject case).
	KindReject
)

// TestCaseError is returned from the per-iteration closure passed to
// Runner.Run.
type TestCaseError struct {
	Kind   TestCaseErrorKind
	Reason string
}

// Error implements error.
func (e *TestCaseError) Error() string { return e.Reason }

// Fail builds a TestCaseError signalling a failed iteration.
func Fail(reason string) *TestCaseError { return &TestCaseError{Kind: KindFail, Reason: reason} }

// Reject builds a TestCaseError signalling a discarded iteration.
func Reject(reason string) *TestCaseError { return &TestCaseError{Kind: KindReject, Reason: reason} }

// TestErrorKind distinguishes a whole-run abort (too many rejects) from a
// confirmed, shrunk failing case.
type TestErrorKind int

const (
	// ErrKindAbort means the run ended because too many iterations were
	// rejected before a fixed budget was exhausted.
	ErrKindAbort TestErrorKind = iota
	// ErrKindFail means the run found and minimized a failing input.
	ErrKindFail
)

// TestError is the terminal result of a failed Runner.Run call. A nil
// *TestError means every iteration succeeded.
type TestError struct {
	Kind     TestErrorKind
	Reason   string
	Calldata []byte

	// RejectCap is the configured global-reject cap that was tripped, set
	// only when Kind == ErrKindAbort and Reason is the fixed
	// "Too many global rejects" string. The aggregator uses it to render
	// item 2's "too many rejects (n = max_global_rejects)".
	RejectCap int
}

// Error implements error.
func (e *TestError) Error() string { return e.Reason }

// Drawer is the minimal draw-source surface a Strategy needs to synthesize
// one iteration's input. The production adapter wraps *rapid.T; tests can
// supply a deterministic fake.
type Drawer interface {
	// Uint64Range draws a uint64 uniformly from [min, max].
	Uint64Range(min, max uint64) uint64
	// Bytes draws n pseudo-random bytes.
	Bytes(n int) []byte
	// Bool draws a pseudo-random boolean, used for the strategy's per-field
	// dictionary-vs-uniform coin and other binary choices.
	Bool() bool
}

// Strategy generates one iteration's calldata from a Drawer. Strategies are
// stateless with respect to the Runner; any session state (the value
// dictionary) is captured by the closure that builds the Strategy.
type Strategy interface {
	Generate(d Drawer) []byte
}

// Runner drives a Strategy through many iterations, invoking run once per
// iteration and shrinking towards a minimal input when run reports a
// KindFail TestCaseError.
type Runner interface {
	Run(strategy Strategy, run func(calldata []byte) *TestCaseError) *TestError
}
