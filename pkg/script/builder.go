package script

import "fmt"

// Builder assembles script bytecode opcode by opcode.
type Builder struct {
	code []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PushData appends an OP_PUSHDATA for data, which must be at most 255 bytes.
func (b *Builder) PushData(data []byte) *Builder {
	if len(data) > 255 {
		panic(fmt.Sprintf("script: PushData of %d bytes exceeds 255-byte limit", len(data)))
	}
	b.code = append(b.code, byte(OP_PUSHDATA), byte(len(data)))
	b.code = append(b.code, data...)
	return b
}

// Op appends a single opcode with no operand.
func (b *Builder) Op(op Op) *Builder {
	b.code = append(b.code, byte(op))
	return b
}

// Bytes returns the assembled bytecode.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.code...)
}
