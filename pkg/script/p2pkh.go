package script

import "fmt"

// P2PKHLockScript builds the standard pay-to-public-key-hash lock script:
//
//	DUP HASH160 <addrHash160> REQUIRE_EQUAL CHECKSIG
//
// The spender must supply a signature and a public key hashing to addrHash160
// in their unlock script.
func P2PKHLockScript(addrHash160 [20]byte) []byte {
	return NewBuilder().
		Op(OP_DUP).
		Op(OP_HASH160).
		PushData(addrHash160[:]).
		Op(OP_REQUIRE_EQUAL).
		Op(OP_CHECKSIG).
		Bytes()
}

// P2PKHUnlockScript builds the standard unlock script for a P2PKH output:
// a pushed signature followed by a pushed compressed public key.
func P2PKHUnlockScript(signature, pubKey []byte) []byte {
	return NewBuilder().
		PushData(signature).
		PushData(pubKey).
		Bytes()
}

// IsP2PKH reports whether lock is structurally the P2PKH pattern
// (DUP HASH160 <20 bytes> REQUIRE_EQUAL CHECKSIG) and, if so, returns the
// embedded address hash160.
func IsP2PKH(lock []byte) (hash160 [20]byte, ok bool) {
	want := []byte{byte(OP_DUP), byte(OP_HASH160), byte(OP_PUSHDATA), 20}
	if len(lock) != len(want)+20+2 {
		return hash160, false
	}
	for i, b := range want {
		if lock[i] != b {
			return hash160, false
		}
	}
	copy(hash160[:], lock[len(want):len(want)+20])
	tail := lock[len(want)+20:]
	if len(tail) != 2 || tail[0] != byte(OP_REQUIRE_EQUAL) || tail[1] != byte(OP_CHECKSIG) {
		return hash160, false
	}
	return hash160, true
}

// MustP2PKHLockScript is a convenience wrapper for genesis/test construction
// that panics on an invalid-length hash (which can only happen if addr
// itself is malformed, a programmer error at those call sites).
func MustP2PKHLockScript(addrHash160 []byte) []byte {
	if len(addrHash160) != 20 {
		panic(fmt.Sprintf("script: address hash160 must be 20 bytes, got %d", len(addrHash160)))
	}
	var h [20]byte
	copy(h[:], addrHash160)
	return P2PKHLockScript(h)
}
