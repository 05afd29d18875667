package abi

import (
	"fmt"
	"strings"
)

// Function describes a Solidity function for calldata encoding and
// decoding: name, inputs, selector derivation, and decode_input.
type Function struct {
	Name   string
	Inputs []ABIType
}

// Signature returns the canonical signature string, e.g.
// "transfer(address,uint256)".
func (f Function) Signature() string {
	names := make([]string, len(f.Inputs))
	for i, t := range f.Inputs {
		names[i] = t.TypeName()
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(names, ","))
}

// ShortSignature returns the 4-byte selector derived from Signature().
func (f Function) ShortSignature() [4]byte {
	return ComputeSelector(f.Signature())
}

// DecodeInput decodes calldata arguments against f.Inputs. data must not
// include the 4-byte selector.
func (f Function) DecodeInput(data []byte) ([]ABIValue, error) {
	return DecodeFunctionResult(data, f.Inputs)
}

// EncodeCall encodes a full call: selector followed by ABI-encoded args.
func (f Function) EncodeCall(args []ABIValue) []byte {
	return EncodeFunctionCall(f.ShortSignature(), args)
}

// Registry maps deployed contract addresses to a human name and the set
// of functions/errors known for that contract, used to resolve
// counter-example signatures back to readable names.
type Registry struct {
	contracts map[[20]byte]ContractABI
}

// ContractABI is the subset of a compiled contract's ABI this module
// needs: its display name and its function set.
type ContractABI struct {
	Name      string
	Functions []Function
}

// NewRegistry creates an empty contract registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[[20]byte]ContractABI)}
}

// Register associates a contract ABI with a deployed address.
func (r *Registry) Register(addr [20]byte, abi ContractABI) {
	r.contracts[addr] = abi
}

// Lookup returns the ContractABI registered at addr, if any.
func (r *Registry) Lookup(addr [20]byte) (ContractABI, bool) {
	abi, ok := r.contracts[addr]
	return abi, ok
}

// FunctionBySelector finds the function in abi whose 4-byte selector
// matches sel.
func (c ContractABI) FunctionBySelector(sel [4]byte) (Function, bool) {
	for _, fn := range c.Functions {
		if fn.ShortSignature() == sel {
			return fn, true
		}
	}
	return Function{}, false
}

// FormatArgs renders decoded arguments the way the counter-example
// display format expects: "val1, val2, ...".
func FormatArgs(values []ABIValue) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

func formatValue(v ABIValue) string {
	switch v.Type.Kind {
	case ABIUint256:
		if v.Uint256 == nil {
			return "0"
		}
		return v.Uint256.String()
	case ABIInt256:
		if v.Int256 == nil {
			return "0"
		}
		return v.Int256.String()
	case ABIAddress:
		return v.Addr.Hex()
	case ABIBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ABIBytes, ABIFixedBytes:
		return fmt.Sprintf("0x%x", v.BytesVal)
	case ABIString:
		return v.StringVal
	case ABIFixedArray, ABIDynamicArray:
		elems := make([]string, len(v.ArrayElems))
		for i, e := range v.ArrayElems {
			elems[i] = formatValue(e)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case ABITuple:
		elems := make([]string, len(v.TupleElems))
		for i, e := range v.TupleElems {
			elems[i] = formatValue(e)
		}
		return "(" + strings.Join(elems, ", ") + ")"
	default:
		return "?"
	}
}
