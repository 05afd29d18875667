package crypto

import (
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as an evmtypes.Hash.
func Keccak256Hash(data ...[]byte) evmtypes.Hash {
	return evmtypes.BytesToHash(Keccak256(data...))
}
