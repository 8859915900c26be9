// Package script implements the stack-based, non-Turing-complete scripting
// language used to authorize spends. A script is a flat byte string of
// opcodes and length-prefixed data pushes, executed left to right against a
// single shared operand stack.
package script

// Op is a single script opcode.
type Op byte

const (
	// OP_PUSHDATA is followed by one length byte (0-255) and that many
	// literal data bytes, pushed as a UByteSeq.
	OP_PUSHDATA Op = 0x00

	// OP_TRUE and OP_FALSE push a literal Bool value.
	OP_TRUE  Op = 0x01
	OP_FALSE Op = 0x02

	// OP_ADD pops two UByteSeq operands, interprets them as big-endian
	// unsigned integers, and pushes their sum as a UByteSeq.
	OP_ADD Op = 0x10

	// OP_SUB pops two UByteSeq operands (b then a, so a is below b on the
	// stack) and pushes b-a, wrapping modulo 2^(8*len) where len is the
	// longer operand's byte length; a negative difference does not fail
	// the script.
	OP_SUB Op = 0x11

	// OP_EQUAL pops two values of the same kind and pushes Bool(a == b).
	OP_EQUAL Op = 0x12

	// OP_REQUIRE_EQUAL pops two values of the same kind and aborts
	// execution (script fails) if they are not equal. Pushes nothing on
	// success.
	OP_REQUIRE_EQUAL Op = 0x13

	// OP_DUP duplicates the top stack value.
	OP_DUP Op = 0x14

	// OP_HASH160 pops a UByteSeq and pushes RIPEMD160(SHA256(seq)) as a
	// 20-byte UByteSeq.
	OP_HASH160 Op = 0x15

	// OP_CHECKSIG pops a pubkey (UByteSeq) then a signature (UByteSeq,
	// pushed below it), verifies the signature over the transaction's
	// signing hash, and pushes the Bool result.
	OP_CHECKSIG Op = 0x16
)

func (o Op) String() string {
	switch o {
	case OP_PUSHDATA:
		return "OP_PUSHDATA"
	case OP_TRUE:
		return "OP_TRUE"
	case OP_FALSE:
		return "OP_FALSE"
	case OP_ADD:
		return "OP_ADD"
	case OP_SUB:
		return "OP_SUB"
	case OP_EQUAL:
		return "OP_EQUAL"
	case OP_REQUIRE_EQUAL:
		return "OP_REQUIRE_EQUAL"
	case OP_DUP:
		return "OP_DUP"
	case OP_HASH160:
		return "OP_HASH160"
	case OP_CHECKSIG:
		return "OP_CHECKSIG"
	default:
		return "OP_UNKNOWN"
	}
}
