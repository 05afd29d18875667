// Package executor defines the boundary between the fuzz core and a concrete
// EVM call path, plus a deterministic in-memory implementation used by this
// repository's own tests and by the fuzzcli demonstration command.
package executor

import (
	"errors"
	"math/big"
	"sync"

	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/statediff"
)

// Errors returned by Executor implementations.
var (
	ErrNoContractAt = errors.New("executor: no contract scripted at address")
)

// Coverage is a per-contract instruction-offset hit-count map attached to
// a raw call result.
type Coverage map[evmtypes.Address]map[uint64]uint64

// Merge adds src's hit counts into c in place (creating c if nil) and
// returns the result. Coverage merge is commutative and associative: it
// is plain per-key addition, so callers must not merge the same observed
// map into a running total twice, or hit counts double.
func (c Coverage) Merge(src Coverage) Coverage {
	if len(src) == 0 {
		return c
	}
	if c == nil {
		c = make(Coverage, len(src))
	}
	for addr, hits := range src {
		dst, ok := c[addr]
		if !ok {
			dst = make(map[uint64]uint64, len(hits))
			c[addr] = dst
		}
		for pc, n := range hits {
			dst[pc] += n
		}
	}
	return c
}

// Breakpoint is a cheat-code-accrued (address, program-counter) pair,
// keyed by the single-character label the cheat code was invoked with.
type Breakpoint struct {
	Address evmtypes.Address
	PC      uint64
}

// RawCallResult is the raw outcome of a single EVM call, the unit the fuzz
// core classifies into a Case or a CounterExample.
type RawCallResult struct {
	Reverted       bool
	ReturnData     []byte
	GasUsed        uint64
	Stipend        uint64
	Logs           []evmtypes.Log
	StateChangeset *statediff.BlockStateDiff
	Traces         *calltrace.CallFrame
	Coverage       Coverage
	Labels         map[evmtypes.Address]string
	Breakpoints    map[byte]Breakpoint
	ExitReason     string
}

// StateReader exposes read-only access to an executor's backing store, used
// by dictionary seeding to harvest candidate values before fuzzing starts.
type StateReader interface {
	Addresses() []evmtypes.Address
	StorageAt(addr evmtypes.Address) map[evmtypes.Hash]evmtypes.Hash
	BalanceOf(addr evmtypes.Address) *big.Int
}

// Executor is the collaborator a fuzz session drives. Implementations
// execute one call against a target contract and judge whether the call
// should count as a passing case given should_fail inversion.
type Executor interface {
	CallRaw(sender, to evmtypes.Address, calldata []byte, value *big.Int) (*RawCallResult, error)
	IsSuccess(addr evmtypes.Address, reverted bool, changeset *statediff.BlockStateDiff, shouldFail bool) bool
	ActiveForkDB() StateReader
	MemDB() StateReader
}

// ScriptedResult is what a ScriptedContract returns for one call.
type ScriptedResult struct {
	Revert        bool
	ExitReason    string
	ReturnData    []byte
	GasUsed       uint64
	StorageWrites map[evmtypes.Hash]evmtypes.Hash
	BalanceDelta  *big.Int
	Logs          []evmtypes.Log
	Coverage      Coverage
	Breakpoints   map[byte]Breakpoint

	// Traces optionally overrides the call frame MemExecutor would
	// otherwise build itself, for scripts that want to simulate a nested
	// call tree. Left nil, CallRaw synthesizes a single top-level frame
	// from the call's own sender/to/value/gas/calldata.
	Traces *calltrace.CallFrame
}

// ScriptedContract is a test double for a deployed contract's call
// semantics: given the caller, calldata and value, it returns the effect of
// one call. MemExecutor uses it in place of real EVM bytecode interpretation.
type ScriptedContract func(sender evmtypes.Address, calldata []byte, value *big.Int) ScriptedResult

// MemExecutor is a deterministic, in-memory Executor backed by
// ScriptedContract callbacks instead of real bytecode execution. It tracks
// per-address storage and balances so that state_diff.BlockStateDiff output
// is derived the same way a real statedb-backed executor would produce it.
type MemExecutor struct {
	mu        sync.Mutex
	contracts map[evmtypes.Address]ScriptedContract
	storage   map[evmtypes.Address]map[evmtypes.Hash]evmtypes.Hash
	balances  map[evmtypes.Address]*big.Int
	labels    map[evmtypes.Address]string
	callCount uint64

	// gasLimit is the gas available to the top-level call frame
	// CallRaw synthesizes, forwarded through calltrace.ForwardGas the
	// same way a real EIP-150 caller would compute it.
	gasLimit uint64
}

// defaultGasLimit is the gas budget MemExecutor assumes for the
// transaction enclosing each scripted call, absent a more specific
// configuration.
const defaultGasLimit = 30_000_000

// NewMemExecutor creates an empty MemExecutor.
func NewMemExecutor() *MemExecutor {
	return &MemExecutor{
		contracts: make(map[evmtypes.Address]ScriptedContract),
		storage:   make(map[evmtypes.Address]map[evmtypes.Hash]evmtypes.Hash),
		balances:  make(map[evmtypes.Address]*big.Int),
		labels:    make(map[evmtypes.Address]string),
		gasLimit:  defaultGasLimit,
	}
}

// Deploy registers a ScriptedContract at addr with an optional display
// label and starting balance.
func (m *MemExecutor) Deploy(addr evmtypes.Address, label string, startBalance *big.Int, fn ScriptedContract) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contracts[addr] = fn
	if _, ok := m.storage[addr]; !ok {
		m.storage[addr] = make(map[evmtypes.Hash]evmtypes.Hash)
	}
	if startBalance == nil {
		startBalance = big.NewInt(0)
	}
	m.balances[addr] = new(big.Int).Set(startBalance)
	if label != "" {
		m.labels[addr] = label
	}
}

// FundAccount credits addr with balance without requiring it to be a
// scripted contract, so generated senders have funds to transfer.
func (m *MemExecutor) FundAccount(addr evmtypes.Address, balance *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] = new(big.Int).Set(balance)
}

// CallRaw executes one call against the contract scripted at to.
func (m *MemExecutor) CallRaw(sender, to evmtypes.Address, calldata []byte, value *big.Int) (*RawCallResult, error) {
	m.mu.Lock()
	fn, ok := m.contracts[to]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoContractAt
	}
	if value == nil {
		value = big.NewInt(0)
	}

	res := fn(sender, calldata, value)

	m.mu.Lock()
	m.callCount++
	callNum := m.callCount

	builder := statediff.NewStateDiffBuilder(callNum, evmtypes.Hash{})

	if value.Sign() != 0 {
		senderBal := m.balanceLocked(sender)
		toBal := m.balanceLocked(to)
		newSenderBal := new(big.Int).Sub(senderBal, value)
		newToBal := new(big.Int).Add(toBal, value)
		m.balances[sender] = newSenderBal
		m.balances[to] = newToBal
		builder.RecordBalanceChange(sender, senderBal, newSenderBal)
		builder.RecordBalanceChange(to, toBal, newToBal)
	}

	if res.BalanceDelta != nil && res.BalanceDelta.Sign() != 0 {
		toBal := m.balanceLocked(to)
		newToBal := new(big.Int).Add(toBal, res.BalanceDelta)
		m.balances[to] = newToBal
		builder.RecordBalanceChange(to, toBal, newToBal)
	}

	if len(res.StorageWrites) > 0 {
		slots := m.storage[to]
		if slots == nil {
			slots = make(map[evmtypes.Hash]evmtypes.Hash)
			m.storage[to] = slots
		}
		for key, newVal := range res.StorageWrites {
			oldVal := slots[key]
			slots[key] = newVal
			builder.RecordStorageChange(to, key, oldVal, newVal)
		}
	}
	m.mu.Unlock()

	childGas, deduction := calltrace.ForwardGas(m.gasLimit, m.gasLimit, value.Sign() != 0)
	stipend := childGas - deduction

	traces := res.Traces
	if traces == nil {
		traces = m.buildTrace(sender, to, value, calldata, res, childGas)
	}

	return &RawCallResult{
		Reverted:       res.Revert,
		ReturnData:     res.ReturnData,
		GasUsed:        res.GasUsed,
		Stipend:        stipend,
		Logs:           res.Logs,
		StateChangeset: builder.Build(),
		Traces:         traces,
		Coverage:       res.Coverage,
		ExitReason:     res.ExitReason,
		Labels:         m.labelsSnapshot(),
		Breakpoints:    res.Breakpoints,
	}, nil
}

// buildTrace assembles the single top-level call frame CallRaw attaches to
// its result when the script doesn't supply its own, pushing and popping it
// through a calltrace.CallFrameStack the way a real call dispatcher would
// frame one non-nested EVM call.
func (m *MemExecutor) buildTrace(sender, to evmtypes.Address, value *big.Int, calldata []byte, res ScriptedResult, gasStart uint64) *calltrace.CallFrame {
	frame := &calltrace.CallFrame{
		Type:       calltrace.FrameCall,
		Caller:     sender,
		To:         to,
		Value:      new(big.Int).Set(value),
		GasStart:   gasStart,
		GasUsed:    res.GasUsed,
		Input:      calldata,
		ReturnData: res.ReturnData,
	}

	stack := calltrace.NewCallFrameStack()
	if err := stack.Push(frame); err != nil {
		return frame
	}
	return stack.Pop()
}

// IsSuccess implements the should_fail inversion: with shouldFail unset a
// call counts as success if it did not revert; with shouldFail set it
// counts as success only if it reverted.
func (m *MemExecutor) IsSuccess(addr evmtypes.Address, reverted bool, changeset *statediff.BlockStateDiff, shouldFail bool) bool {
	if shouldFail {
		return reverted
	}
	return !reverted
}

// ActiveForkDB always returns nil: MemExecutor never runs against a forked
// remote backend.
func (m *MemExecutor) ActiveForkDB() StateReader { return nil }

// MemDB returns a StateReader over the executor's own store. Each read
// reflects the store's state at the time of that read.
func (m *MemExecutor) MemDB() StateReader { return &memStateReader{m: m} }

func (m *MemExecutor) balanceLocked(addr evmtypes.Address) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *MemExecutor) labelsSnapshot() map[evmtypes.Address]string {
	out := make(map[evmtypes.Address]string, len(m.labels))
	for k, v := range m.labels {
		out[k] = v
	}
	return out
}

type memStateReader struct {
	m *MemExecutor
}

func (r *memStateReader) Addresses() []evmtypes.Address {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	addrs := make([]evmtypes.Address, 0, len(r.m.contracts))
	for a := range r.m.contracts {
		addrs = append(addrs, a)
	}
	return addrs
}

func (r *memStateReader) StorageAt(addr evmtypes.Address) map[evmtypes.Hash]evmtypes.Hash {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	src := r.m.storage[addr]
	out := make(map[evmtypes.Hash]evmtypes.Hash, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (r *memStateReader) BalanceOf(addr evmtypes.Address) *big.Int {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return new(big.Int).Set(r.m.balanceLocked(addr))
}
