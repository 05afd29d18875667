package abi

// revertSelector is the 4-byte selector of Solidity's built-in
// Error(string) revert encoding.
var revertSelector = ComputeSelector("Error(string)")

// DecodeRevert attempts to turn raw revert return-bytes into a
// human-readable reason. It tries, in order: the built-in Error(string)
// encoding, then each custom error in errs by matching its selector. It
// returns "" (not an error) when nothing matches, matching the "defaulting
// to the empty string if decoding fails" behavior required of the
// classifier.
func DecodeRevert(returnBytes []byte, errs []Function) string {
	if len(returnBytes) >= 4 {
		var sel [4]byte
		copy(sel[:], returnBytes[:4])

		if sel == revertSelector {
			vals, err := DecodeFunctionResult(returnBytes[4:], []ABIType{{Kind: ABIString}})
			if err == nil && len(vals) == 1 {
				return vals[0].StringVal
			}
		}

		for _, e := range errs {
			if e.ShortSignature() == sel {
				vals, err := e.DecodeInput(returnBytes[4:])
				if err != nil {
					continue
				}
				return e.Name + "(" + FormatArgs(vals) + ")"
			}
		}
	}
	return ""
}
