package fuzz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/calltrace"
	"github.com/fuzzrig/evmfuzz/evmtypes"
)

// Decoded counter-example construction errors.
var (
	ErrUnknownContract   = errors.New("fuzz: unknown contract at address")
	ErrUnknownFunction   = errors.New("fuzz: unknown function for calldata selector")
	ErrFailedDecodeInput = errors.New("fuzz: failed to decode calldata arguments")
)

// BaseCounterExample is a fully decoded counter-example record.
// Sender/TargetAddress/Signature/ContractName may be zero-valued when the
// corresponding collaborator couldn't resolve them; DecodedArgs is never
// serialized, only used for display and programmatic inspection.
type BaseCounterExample struct {
	Sender        *evmtypes.Address
	TargetAddress *evmtypes.Address
	Calldata      []byte
	Signature     string
	ContractName  string
	DecodedArgs   []abi.ABIValue
	Traces        *calltrace.CallFrame
}

// BuildCounterExample takes a sender, target address and calldata, looks
// up the contract, finds the function whose selector matches, decodes the
// arguments, and assembles the full record.
// Errors are diagnostic only (ErrUnknownContract, ErrUnknownFunction,
// ErrFailedDecodeInput); they never alter a fuzz session's outcome.
func BuildCounterExample(
	sender, addr evmtypes.Address,
	calldata []byte,
	contracts *abi.Registry,
	traces *calltrace.CallFrame,
) (*BaseCounterExample, error) {
	base := &BaseCounterExample{
		Sender:        &sender,
		TargetAddress: &addr,
		Calldata:      calldata,
		Traces:        traces,
	}

	contract, ok := contracts.Lookup([20]byte(addr))
	if !ok {
		return base, ErrUnknownContract
	}
	base.ContractName = contract.Name

	if len(calldata) < 4 {
		return base, ErrUnknownFunction
	}
	var sel [4]byte
	copy(sel[:], calldata[:4])

	fn, ok := contract.FunctionBySelector(sel)
	if !ok {
		return base, ErrUnknownFunction
	}
	base.Signature = fn.Signature()

	args, err := fn.DecodeInput(calldata[4:])
	if err != nil {
		return base, fmt.Errorf("%w: %v", ErrFailedDecodeInput, err)
	}
	base.DecodedArgs = args
	return base, nil
}

// Display renders the stable, human-readable format:
//
//	sender=<addr> addr=[<contract_name>]<addr> calldata=<signature>, args=[<arg1>, <arg2>, …]
//
// Segments for absent optional fields are omitted; when no signature is
// known, "calldata=0x<hex>" is emitted instead. The args segment is always
// rendered once a signature is known, even for a zero-argument function
// ("args=[]"), since DecodedArgs is not one of the optional fields. No
// trailing newline.
func (c *BaseCounterExample) Display() string {
	var b strings.Builder

	if c.Sender != nil {
		fmt.Fprintf(&b, "sender=%s ", c.Sender.Hex())
	}
	if c.TargetAddress != nil {
		if c.ContractName != "" {
			fmt.Fprintf(&b, "addr=[%s]%s ", c.ContractName, c.TargetAddress.Hex())
		} else {
			fmt.Fprintf(&b, "addr=%s ", c.TargetAddress.Hex())
		}
	}

	if c.Signature != "" {
		fmt.Fprintf(&b, "calldata=%s", c.Signature)
		fmt.Fprintf(&b, ", args=[%s]", abi.FormatArgs(c.DecodedArgs))
	} else {
		fmt.Fprintf(&b, "calldata=0x%x", c.Calldata)
	}

	return b.String()
}
