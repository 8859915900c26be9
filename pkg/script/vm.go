package script

import (
	"fmt"
	"math/big"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
)

// MaxOps bounds how many opcodes a single execution may run, so a script
// can never cause unbounded work. Spend scripts are short and flat by
// construction (no loops or jumps exist in this language), so a generous
// ceiling only guards against malformed or oversized scripts.
const MaxOps = 1000

// Verifier checks a signature over a fixed message hash. pkg/crypto's
// VerifySignature satisfies this.
type Verifier func(hash, signature, publicKey []byte) bool

// Execute runs an unlock script followed by a lock script against a single
// shared stack, as spec'd: the unlock script supplies the data
// (signature, public key, ...) that the lock script's conditions check.
// sigHash is the transaction signing hash OP_CHECKSIG verifies against.
// Execute reports whether the combined script succeeded: it must run to
// completion without a failing opcode and leave exactly one Bool(true) on
// the stack.
func Execute(unlock, lock []byte, sigHash [32]byte, verify Verifier) (bool, error) {
	return execute(unlock, lock, sigHash, verify, nil)
}

// ExecuteTrace runs a script exactly like Execute, but invokes onStep after
// every opcode with the opcode just run and a snapshot of the stack
// (bottom at index 0). Used by tooling that wants to show script execution
// step by step rather than just the final verdict.
func ExecuteTrace(unlock, lock []byte, sigHash [32]byte, verify Verifier, onStep func(op Op, stack []Value)) (bool, error) {
	return execute(unlock, lock, sigHash, verify, onStep)
}

func execute(unlock, lock []byte, sigHash [32]byte, verify Verifier, onStep func(op Op, stack []Value)) (bool, error) {
	if verify == nil {
		verify = crypto.VerifySignature
	}
	s := &stack{}
	ops := 0
	for _, code := range [][]byte{unlock, lock} {
		pc := 0
		for pc < len(code) {
			ops++
			if ops > MaxOps {
				return false, fmt.Errorf("script: exceeded max op count %d", MaxOps)
			}
			op := Op(code[pc])
			pc++
			switch op {
			case OP_PUSHDATA:
				if pc >= len(code) {
					return false, fmt.Errorf("script: truncated push length")
				}
				n := int(code[pc])
				pc++
				if pc+n > len(code) {
					return false, fmt.Errorf("script: truncated push data")
				}
				s.push(seqValue(code[pc : pc+n]))
				pc += n

			case OP_TRUE:
				s.push(boolValue(true))
			case OP_FALSE:
				s.push(boolValue(false))

			case OP_DUP:
				top, err := s.peek()
				if err != nil {
					return false, err
				}
				s.push(top)

			case OP_ADD, OP_SUB:
				b, err := s.pop()
				if err != nil {
					return false, err
				}
				a, err := s.pop()
				if err != nil {
					return false, err
				}
				if a.Kind != KindUByteSeq || b.Kind != KindUByteSeq {
					return false, fmt.Errorf("script: %s requires two UByteSeq operands", op)
				}
				ai := new(big.Int).SetBytes(a.Bytes)
				bi := new(big.Int).SetBytes(b.Bytes)
				var r *big.Int
				if op == OP_ADD {
					r = new(big.Int).Add(ai, bi)
				} else {
					// SUB computes b-a (a, b pushed in that order; b is the
					// stack top), wrapping modulo 2^(8*len) on the operands'
					// fixed-width byte representation rather than failing
					// on a negative difference.
					length := len(a.Bytes)
					if len(b.Bytes) > length {
						length = len(b.Bytes)
					}
					if length == 0 {
						length = 1
					}
					mod := new(big.Int).Lsh(big.NewInt(1), uint(8*length))
					r = new(big.Int).Sub(bi, ai)
					r.Mod(r, mod)
				}
				s.push(seqValue(r.Bytes()))

			case OP_EQUAL:
				b, err := s.pop()
				if err != nil {
					return false, err
				}
				a, err := s.pop()
				if err != nil {
					return false, err
				}
				s.push(boolValue(a.Equal(b)))

			case OP_REQUIRE_EQUAL:
				b, err := s.pop()
				if err != nil {
					return false, err
				}
				a, err := s.pop()
				if err != nil {
					return false, err
				}
				if !a.Equal(b) {
					return false, fmt.Errorf("script: OP_REQUIRE_EQUAL failed")
				}

			case OP_HASH160:
				a, err := s.pop()
				if err != nil {
					return false, err
				}
				if a.Kind != KindUByteSeq {
					return false, fmt.Errorf("script: OP_HASH160 requires a UByteSeq operand")
				}
				h := crypto.Hash160(a.Bytes)
				s.push(seqValue(h[:]))

			case OP_CHECKSIG:
				pubKey, err := s.pop()
				if err != nil {
					return false, err
				}
				sig, err := s.pop()
				if err != nil {
					return false, err
				}
				if pubKey.Kind != KindUByteSeq || sig.Kind != KindUByteSeq {
					return false, fmt.Errorf("script: OP_CHECKSIG requires UByteSeq operands")
				}
				ok := verify(sigHash[:], sig.Bytes, pubKey.Bytes)
				s.push(boolValue(ok))

			default:
				return false, fmt.Errorf("script: unknown opcode 0x%02x", byte(op))
			}

			if onStep != nil {
				onStep(op, append([]Value(nil), s.vals...))
			}
		}
	}

	if s.len() != 1 {
		return false, fmt.Errorf("script: expected exactly one value on the stack at end of execution, got %d", s.len())
	}
	top, _ := s.pop()
	return top.Kind == KindBool && top.Bool, nil
}
