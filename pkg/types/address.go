package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// doubleSHA256 is used only for the address checksum; it is kept local to
// avoid pkg/types depending on pkg/crypto (which itself depends on types).
func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// AddressSize is the length of an address in bytes (RIPEMD160(SHA256(pubkey))).
const AddressSize = 20

// AddressVersion is the single version byte prepended before base58check
// encoding. TsengCoin mainnet and testnet share one version, since the
// network a node speaks to is determined by the genesis hash it loaded,
// not by the address format.
const AddressVersion byte = 0x03

// Address represents a 160-bit address (public key hash).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the base58check-encoded address (e.g. "2Luj...").
func (a Address) String() string {
	s, err := EncodeAddress(a)
	if err != nil {
		// Unreachable in practice: EncodeAddress only fails on checksum
		// math, which never happens for a fixed-size input.
		return hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex-encoded address without a version byte.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a base58check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58check or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EncodeAddress encodes a raw 20-byte hash160 as a base58check string:
// base58(version || hash160 || checksum[:4]), checksum = SHA256(SHA256(version||hash160)).
func EncodeAddress(a Address) (string, error) {
	payload := make([]byte, 0, 1+AddressSize)
	payload = append(payload, AddressVersion)
	payload = append(payload, a[:]...)
	checksum := doubleSHA256(payload)
	full := append(payload, checksum[:4]...)
	return base58.Encode(full), nil
}

// ParseAddress parses a base58check address string, or a raw 40-char hex
// hash160 for genesis/internal use.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	if isHex40(s) {
		return HexToAddress(s)
	}

	decoded, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58check address: %w", err)
	}
	if len(decoded) != 1+AddressSize+4 {
		return Address{}, fmt.Errorf("address must decode to %d bytes, got %d", 1+AddressSize+4, len(decoded))
	}

	payload := decoded[:1+AddressSize]
	checksum := decoded[1+AddressSize:]
	want := doubleSHA256(payload)
	if !bytesEqual(checksum, want[:4]) {
		return Address{}, fmt.Errorf("address checksum mismatch")
	}
	if payload[0] != AddressVersion {
		return Address{}, fmt.Errorf("unexpected address version byte 0x%02x", payload[0])
	}

	var a Address
	copy(a[:], payload[1:])
	return a, nil
}

// HexToAddress converts a raw hex string to an Address.
// Returns an error if the string is not exactly 40 hex characters.
// For user-facing input that may be base58check, use ParseAddress instead.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
