// Package crypto provides cryptographic primitives for TsengCoin Core.
package crypto

import (
	"crypto/sha256"

	"github.com/tsengchain/tsengcoin-core/pkg/types"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // spec-mandated address hash
)

// Hash computes a single SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// Hash160 computes RIPEMD160(SHA256(data)), the address hash used to derive
// a public key's on-chain address.
func Hash160(data []byte) [20]byte {
	sh := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sh[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = RIPEMD160(SHA256(compressed_pubkey)).
func AddressFromPubKey(pubKey []byte) types.Address {
	return types.Address(Hash160(pubKey))
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
