// Package dictionary implements the session-scoped value dictionary the
// input strategy draws from: a per-category cache of "interesting" values
// absorbed from prior call outcomes, seeded once from the executor's
// backing store before fuzzing starts.
package dictionary

import (
	"errors"
	"math/big"
	"math/rand"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/statediff"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("dictionary: invalid config")

// Category partitions dictionary values by the ABI primitive kind they can
// serve. Composite kinds (arrays, tuples) are assembled from these at the
// strategy layer and are never stored directly.
type Category int

const (
	CategoryUint256 Category = iota
	CategoryInt256
	CategoryAddress
	CategoryBool
	CategoryBytes
	CategoryString
	CategoryFixedBytes

	numCategories
)

// Config controls dictionary sizing and what absorption sources are used.
// The zero value is invalid; use NewConfig.
type Config struct {
	// MaxValuesPerCategory bounds the ring buffer size per Category. Once
	// reached, the oldest value in that category is evicted (FIFO) to make
	// room for the newest absorbed value.
	MaxValuesPerCategory int

	// IncludeStorage absorbs raw 32-byte storage slot keys/values seen in a
	// call's state changeset as uint256/bytes32 candidates.
	IncludeStorage bool

	// IncludePushBytes absorbs literal byte constants surfaced via logs
	// (the nearest Go-level analogue to the Rust fuzzer's PUSH-bytes
	// bytecode scan, which this module has no bytecode to scan).
	IncludePushBytes bool

	// DictionaryWeight is the 0-100 weight given to dictionary-biased
	// sampling in the input strategy's weighted union.
	DictionaryWeight int
}

// NewConfig builds a Config with the given sizing and weight, validating it.
func NewConfig(maxPerCategory int, includeStorage, includePushBytes bool, dictionaryWeight int) (Config, error) {
	c := Config{
		MaxValuesPerCategory: maxPerCategory,
		IncludeStorage:       includeStorage,
		IncludePushBytes:     includePushBytes,
		DictionaryWeight:     dictionaryWeight,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that the config's numeric fields are in range.
func (c Config) Validate() error {
	if c.MaxValuesPerCategory <= 0 {
		return errors.New("dictionary: max values per category must be positive")
	}
	if c.DictionaryWeight < 0 || c.DictionaryWeight > 100 {
		return errors.New("dictionary: dictionary weight must be within 0..100")
	}
	return nil
}

// ringBuffer is a FIFO, fixed-capacity slice of ABI values for one category.
// Uniqueness (§3 "uniqueness enforced") is maintained via a parallel key
// set: a value already present is a no-op rather than a duplicate insert.
type ringBuffer struct {
	values []abi.ABIValue
	keys   []string
	seen   map[string]bool
	cap    int
	next   int
	full   bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		values: make([]abi.ABIValue, 0, capacity),
		keys:   make([]string, 0, capacity),
		seen:   make(map[string]bool, capacity),
		cap:    capacity,
	}
}

func (r *ringBuffer) insert(v abi.ABIValue) {
	key := valueKey(v)
	if r.seen[key] {
		return
	}
	if len(r.values) < r.cap {
		r.values = append(r.values, v)
		r.keys = append(r.keys, key)
		r.seen[key] = true
		return
	}
	// Evict the oldest entry: overwrite at r.next, the FIFO eviction policy
	// resolved for the dictionary's open eviction question.
	delete(r.seen, r.keys[r.next])
	r.values[r.next] = v
	r.keys[r.next] = key
	r.seen[key] = true
	r.next = (r.next + 1) % r.cap
	r.full = true
}

// valueKey derives a uniqueness key for v within its own category; values
// from different categories never share a bucket so cross-category
// collisions are irrelevant.
func valueKey(v abi.ABIValue) string {
	switch v.Type.Kind {
	case abi.ABIUint256:
		if v.Uint256 == nil {
			return "0"
		}
		return v.Uint256.String()
	case abi.ABIInt256:
		if v.Int256 == nil {
			return "0"
		}
		return v.Int256.String()
	case abi.ABIAddress:
		return v.Addr.Hex()
	case abi.ABIBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case abi.ABIString:
		return v.StringVal
	default:
		return string(v.BytesVal)
	}
}

func (r *ringBuffer) sample(rng *rand.Rand) (abi.ABIValue, bool) {
	if len(r.values) == 0 {
		return abi.ABIValue{}, false
	}
	return r.values[rng.Intn(len(r.values))], true
}

// Dictionary is the session-scoped value cache. A single Dictionary is
// shared by all iterations of one Fuzzer.Fuzz call; it is not safe to reuse
// across independent fuzz sessions that should not share history.
type Dictionary struct {
	cfg     Config
	buckets [numCategories]*ringBuffer
}

// New creates an empty Dictionary sized per cfg.
func New(cfg Config) *Dictionary {
	d := &Dictionary{cfg: cfg}
	for i := range d.buckets {
		d.buckets[i] = newRingBuffer(cfg.MaxValuesPerCategory)
	}
	return d
}

// BackendReader is the minimal read-only surface SeedFromBackend needs. Any
// executor.StateReader-shaped value satisfies it without an import of the
// executor package.
type BackendReader interface {
	Addresses() []evmtypes.Address
	StorageAt(addr evmtypes.Address) map[evmtypes.Hash]evmtypes.Hash
	BalanceOf(addr evmtypes.Address) *big.Int
}

// SeedFromBackend absorbs every address visible in the executor's backing
// store, and (if IncludeStorage) every storage word of those addresses,
// before the first fuzz iteration runs.
func (d *Dictionary) SeedFromBackend(reader BackendReader) {
	if reader == nil {
		return
	}
	for _, addr := range reader.Addresses() {
		d.insertAddress(addr)
		if d.cfg.IncludeStorage {
			for key, val := range reader.StorageAt(addr) {
				d.insertHashAsUint(key)
				d.insertHashAsUint(val)
			}
		}
	}
}

// Absorb walks a call's state changeset and logs, harvesting candidate
// values the way collect_state_from_call does in the original fuzzer: every
// address touched, every new balance, (if IncludeStorage) every storage slot
// key/value, and (if IncludePushBytes) log topics and data treated as
// byte-constant candidates.
func (d *Dictionary) Absorb(changeset *statediff.BlockStateDiff, logs []evmtypes.Log) {
	if changeset != nil {
		for _, ad := range changeset.AccountDiffs {
			d.insertAddress(ad.Address)
			if d.cfg.IncludeStorage {
				for _, sc := range ad.StorageChanges {
					d.insertHashAsUint(sc.Key)
					d.insertHashAsUint(sc.From)
					d.insertHashAsUint(sc.To)
				}
			}
			if ad.BalanceChange != nil {
				d.insertUint256(ad.BalanceChange.To)
			}
		}
	}
	if d.cfg.IncludePushBytes {
		for _, log := range logs {
			for _, topic := range log.Topics {
				d.insertHashAsUint(topic)
			}
			if len(log.Data) > 0 {
				d.insertBytes(log.Data)
			}
		}
	}
}

// Sample draws a uniformly random value from cat's bucket using rng. The
// second return is false when the bucket is empty (nothing absorbed yet),
// in which case the strategy layer falls back to uniform ABI generation.
func (d *Dictionary) Sample(cat Category, rng *rand.Rand) (abi.ABIValue, bool) {
	if cat < 0 || cat >= numCategories {
		return abi.ABIValue{}, false
	}
	return d.buckets[cat].sample(rng)
}

// Len returns the number of values currently cached for cat.
func (d *Dictionary) Len(cat Category) int {
	if cat < 0 || cat >= numCategories {
		return 0
	}
	return len(d.buckets[cat].values)
}

func (d *Dictionary) insertAddress(addr evmtypes.Address) {
	d.buckets[CategoryAddress].insert(abi.ABIValue{Type: abi.ABIType{Kind: abi.ABIAddress}, Addr: addr})
}

func (d *Dictionary) insertUint256(v *big.Int) {
	if v == nil {
		return
	}
	d.buckets[CategoryUint256].insert(abi.ABIValue{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: new(big.Int).Set(v)})
}

func (d *Dictionary) insertBytes(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	d.buckets[CategoryBytes].insert(abi.ABIValue{Type: abi.ABIType{Kind: abi.ABIBytes}, BytesVal: cp})
}

// insertHashAsUint absorbs a 32-byte hash both as a uint256 candidate and a
// fixed-bytes32 candidate, since either ABI kind may want it.
func (d *Dictionary) insertHashAsUint(h evmtypes.Hash) {
	d.buckets[CategoryUint256].insert(abi.ABIValue{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: new(big.Int).SetBytes(h[:])})
	d.buckets[CategoryFixedBytes].insert(abi.ABIValue{
		Type:     abi.ABIType{Kind: abi.ABIFixedBytes, Size: 32},
		BytesVal: append([]byte(nil), h[:]...),
	})
}
