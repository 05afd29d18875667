// Package strategy implements the composite input-generation strategy: for
// a given function signature it produces a calldata byte sequence by
// blending uniform ABI generation with dictionary-biased sampling,
// relative-weighted.
package strategy

import (
	"math/big"
	"math/rand"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/dictionary"
	"github.com/fuzzrig/evmfuzz/runner"
)

// Config controls how heavily the dictionary is favored over uniform
// generation. DictionaryWeight mirrors dictionary.Config.DictionaryWeight
// (0..100); the two are kept as separate fields since a session may want a
// dictionary sized differently from how hard the strategy leans on it, but
// callers typically derive both from the same dictionary.Config.
type Config struct {
	// DictionaryWeight is the relative weight (0..100) given to
	// dictionary-biased sampling versus uniform generation, independently
	// per argument. 0 disables dictionary sampling entirely; 100 means
	// every argument first attempts the dictionary before falling back to
	// uniform generation on an empty category.
	DictionaryWeight int

	// MaxDynamicLen bounds the length drawn for bytes/string/dynamic-array
	// arguments. A non-positive value defaults to 32, biasing toward small
	// lengths with an occasional larger draw.
	MaxDynamicLen int

	// MaxArrayLen bounds the length drawn for fixed-size-unspecified
	// dynamic arrays (same default as MaxDynamicLen when unset).
	MaxArrayLen int
}

func (c Config) dynamicLen() int {
	if c.MaxDynamicLen > 0 {
		return c.MaxDynamicLen
	}
	return 32
}

func (c Config) arrayLen() int {
	if c.MaxArrayLen > 0 {
		return c.MaxArrayLen
	}
	return c.dynamicLen()
}

// CallStrategy implements runner.Strategy for one function signature,
// drawing each argument either uniformly or (weighted by cfg) from dict.
// A nil dict degrades gracefully to pure uniform generation, matching the
// contract's "falls back to uniform ABI generation" failure model.
type CallStrategy struct {
	fn   abi.Function
	dict *dictionary.Dictionary
	cfg  Config
}

// New builds a CallStrategy over fn, drawing dictionary-biased values from
// dict (which may be nil) per cfg.
func New(fn abi.Function, dict *dictionary.Dictionary, cfg Config) *CallStrategy {
	return &CallStrategy{fn: fn, dict: dict, cfg: cfg}
}

// Generate implements runner.Strategy. A zero-argument function is a
// constant strategy producing only the 4-byte selector.
func (s *CallStrategy) Generate(d runner.Drawer) []byte {
	sel := s.fn.ShortSignature()
	if len(s.fn.Inputs) == 0 {
		return sel[:]
	}

	// One argument's generation may need many Drawer draws (dynamic length,
	// nested elements); the dictionary's own uniform-index choice doesn't
	// fit the Drawer abstraction (rapid has no raw *rand.Rand), so each
	// iteration seeds its own math/rand source from one Drawer draw. This
	// keeps the whole iteration's sequence of dictionary picks deterministic
	// given that one seed, without threading rapid internals through
	// dictionary.Sample.
	seed := int64(d.Uint64Range(0, ^uint64(0)>>1))
	rng := rand.New(rand.NewSource(seed))

	args := make([]abi.ABIValue, len(s.fn.Inputs))
	for i, t := range s.fn.Inputs {
		args[i] = s.drawValue(t, d, rng)
	}
	return abi.EncodeFunctionCall(sel, args)
}

// drawValue draws one ABI value of type t, attempting the dictionary first
// with probability cfg.DictionaryWeight/100 (independently per value, so
// nested array/tuple elements each get their own coin), falling back to
// uniform generation on an empty category or a losing coin.
func (s *CallStrategy) drawValue(t abi.ABIType, d runner.Drawer, rng *rand.Rand) abi.ABIValue {
	if s.dict != nil && s.cfg.DictionaryWeight > 0 {
		if cat, ok := dictionaryCategory(t); ok {
			tryDict := s.cfg.DictionaryWeight >= 100 ||
				d.Uint64Range(0, 99) < uint64(s.cfg.DictionaryWeight)
			if tryDict {
				if v, ok := s.dict.Sample(cat, rng); ok {
					return adaptDictValue(v, t)
				}
			}
		}
	}
	return s.uniformValue(t, d, rng)
}

// dictionaryCategory maps an ABI primitive kind to the dictionary category
// that can serve it. Composite kinds have no direct category; their
// elements are drawn (and may hit the dictionary) individually.
func dictionaryCategory(t abi.ABIType) (dictionary.Category, bool) {
	switch t.Kind {
	case abi.ABIUint256:
		return dictionary.CategoryUint256, true
	case abi.ABIInt256:
		return dictionary.CategoryInt256, true
	case abi.ABIAddress:
		return dictionary.CategoryAddress, true
	case abi.ABIBool:
		return dictionary.CategoryBool, true
	case abi.ABIBytes:
		return dictionary.CategoryBytes, true
	case abi.ABIString:
		return dictionary.CategoryString, true
	case abi.ABIFixedBytes:
		return dictionary.CategoryFixedBytes, true
	default:
		return 0, false
	}
}

// adaptDictValue reshapes a sampled dictionary value to exactly match the
// destination type (e.g. a harvested bytes32 word trimmed to a bytes4
// argument), so a category match never produces a mis-sized encoding.
func adaptDictValue(v abi.ABIValue, t abi.ABIType) abi.ABIValue {
	switch t.Kind {
	case abi.ABIFixedBytes:
		out := make([]byte, t.Size)
		copy(out, v.BytesVal)
		return abi.ABIValue{Type: t, BytesVal: out}
	case abi.ABIString:
		return abi.ABIValue{Type: t, StringVal: string(v.BytesVal), BytesVal: v.BytesVal}
	default:
		v.Type = t
		return v
	}
}

// uniformValue draws a value of type t uniformly over its domain.
func (s *CallStrategy) uniformValue(t abi.ABIType, d runner.Drawer, rng *rand.Rand) abi.ABIValue {
	switch t.Kind {
	case abi.ABIUint256:
		return abi.ABIValue{Type: t, Uint256: randomUint256(d)}

	case abi.ABIInt256:
		return abi.ABIValue{Type: t, Int256: randomInt256(d)}

	case abi.ABIAddress:
		var addr [20]byte
		copy(addr[:], d.Bytes(20))
		return abi.ABIValue{Type: t, Addr: addr}

	case abi.ABIBool:
		return abi.ABIValue{Type: t, Bool: d.Bool()}

	case abi.ABIFixedBytes:
		size := t.Size
		if size <= 0 || size > 32 {
			size = 32
		}
		return abi.ABIValue{Type: t, BytesVal: d.Bytes(size)}

	case abi.ABIBytes:
		n := smallLength(d, s.cfg.dynamicLen())
		return abi.ABIValue{Type: t, BytesVal: d.Bytes(n)}

	case abi.ABIString:
		n := smallLength(d, s.cfg.dynamicLen())
		raw := d.Bytes(n)
		return abi.ABIValue{Type: t, StringVal: string(raw), BytesVal: raw}

	case abi.ABIFixedArray:
		elem := elemType(t)
		elems := make([]abi.ABIValue, t.Size)
		for i := range elems {
			elems[i] = s.drawValue(elem, d, rng)
		}
		return abi.ABIValue{Type: t, ArrayElems: elems}

	case abi.ABIDynamicArray:
		elem := elemType(t)
		n := smallLength(d, s.cfg.arrayLen())
		elems := make([]abi.ABIValue, n)
		for i := range elems {
			elems[i] = s.drawValue(elem, d, rng)
		}
		return abi.ABIValue{Type: t, ArrayElems: elems}

	case abi.ABITuple:
		fields := make([]abi.ABIValue, len(t.Fields))
		for i, ft := range t.Fields {
			fields[i] = s.drawValue(ft, d, rng)
		}
		return abi.ABIValue{Type: t, TupleElems: fields}

	default:
		return abi.ABIValue{Type: t}
	}
}

func elemType(t abi.ABIType) abi.ABIType {
	if t.Elem != nil {
		return *t.Elem
	}
	return abi.ABIType{Kind: abi.ABIUint256}
}

// smallLength draws a length in [0, max] biased towards small values: half
// the time it stays within the first quarter of the range, without pulling
// in a non-uniform distribution dependency.
func smallLength(d runner.Drawer, max int) int {
	if max <= 0 {
		return 0
	}
	quarter := uint64(max) / 4
	if d.Uint64Range(0, 1) == 0 {
		return int(d.Uint64Range(0, quarter))
	}
	return int(d.Uint64Range(0, uint64(max)))
}

// randomUint256 draws 32 random bytes and decodes them as an unsigned
// 256-bit word, reusing the ABI decoder instead of re-deriving byte/bigint
// conversion rules.
func randomUint256(d runner.Drawer) *big.Int {
	raw := d.Bytes(32)
	vals, err := abi.DecodeFunctionResult(raw, []abi.ABIType{{Kind: abi.ABIUint256}})
	if err != nil {
		return new(big.Int)
	}
	return vals[0].Uint256
}

// randomInt256 draws 32 random bytes and decodes them as a signed 256-bit
// two's-complement word via the ABI decoder.
func randomInt256(d runner.Drawer) *big.Int {
	raw := d.Bytes(32)
	vals, err := abi.DecodeFunctionResult(raw, []abi.ABIType{{Kind: abi.ABIInt256}})
	if err != nil {
		return new(big.Int)
	}
	return vals[0].Int256
}
