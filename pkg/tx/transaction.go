// Package tx defines transaction types and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Input references a UTXO being spent. UnlockScript supplies whatever data
// and opcodes the referenced output's LockScript requires (typically a
// pushed signature and public key for a P2PKH output). A coinbase input
// has a zero-hash/0xFFFFFFFF PrevOut and an UnlockScript that carries
// arbitrary extra data (e.g. the block height) instead of spend proof.
type Input struct {
	PrevOut      types.Outpoint `json:"prevout"`
	UnlockScript []byte         `json:"unlock_script"`
}

type inputJSON struct {
	PrevOut      types.Outpoint `json:"prevout"`
	UnlockScript string         `json:"unlock_script"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{
		PrevOut:      in.PrevOut,
		UnlockScript: hex.EncodeToString(in.UnlockScript),
	})
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.UnlockScript != "" {
		b, err := hex.DecodeString(j.UnlockScript)
		if err != nil {
			return err
		}
		in.UnlockScript = b
	}
	return nil
}

// Output defines a new UTXO: an amount and the lock script that must be
// satisfied (together with an unlock script) to spend it.
type Output struct {
	Value      uint64 `json:"value"`
	LockScript []byte `json:"lock_script"`
}

type outputJSON struct {
	Value      uint64 `json:"value"`
	LockScript string `json:"lock_script"`
}

func (out Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{
		Value:      out.Value,
		LockScript: hex.EncodeToString(out.LockScript),
	})
}

func (out *Output) UnmarshalJSON(data []byte) error {
	var j outputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	out.Value = j.Value
	if j.LockScript != "" {
		b, err := hex.DecodeString(j.LockScript)
		if err != nil {
			return err
		}
		out.LockScript = b
	}
	return nil
}

// TxID computes the transaction id: a single SHA-256 hash of the full
// canonical serialization, including unlock scripts. Two transactions with
// identical effects but different unlock script bytes (e.g. different
// signatures) have different ids.
func (t *Transaction) TxID() types.Hash {
	return crypto.Hash(t.Serialize())
}

// Hash is an alias for TxID, kept for call sites that think of a
// transaction like any other hashable object.
func (t *Transaction) Hash() types.Hash {
	return t.TxID()
}

// Serialize returns the full canonical byte encoding of the transaction,
// including unlock scripts. This is both the wire format and the input to
// TxID.
//
// Format: version(4) | input_count(4) | [prevout(36) + unlock_len(4) + unlock]...
// | output_count(4) | [value(8) + lock_len(4) + lock]... | locktime(8)
func (t *Transaction) Serialize() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, t.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.UnlockScript)))
		buf = append(buf, in.UnlockScript...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.LockScript)))
		buf = append(buf, out.LockScript...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.LockTime)
	return buf
}

// Deserialize parses the canonical byte encoding produced by Serialize.
func Deserialize(b []byte) (*Transaction, error) {
	r := &reader{buf: b}
	t := &Transaction{}

	var err error
	if t.Version, err = r.uint32(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	inCount, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("input count: %w", err)
	}
	t.Inputs = make([]Input, inCount)
	for i := range t.Inputs {
		var txid types.Hash
		if err := r.fixed(txid[:]); err != nil {
			return nil, fmt.Errorf("input %d prevout txid: %w", i, err)
		}
		idx, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("input %d prevout index: %w", i, err)
		}
		unlockLen, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("input %d unlock len: %w", i, err)
		}
		unlock, err := r.bytes(int(unlockLen))
		if err != nil {
			return nil, fmt.Errorf("input %d unlock script: %w", i, err)
		}
		t.Inputs[i] = Input{PrevOut: types.Outpoint{TxID: txid, Index: idx}, UnlockScript: unlock}
	}

	outCount, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("output count: %w", err)
	}
	t.Outputs = make([]Output, outCount)
	for i := range t.Outputs {
		val, err := r.uint64()
		if err != nil {
			return nil, fmt.Errorf("output %d value: %w", i, err)
		}
		lockLen, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("output %d lock len: %w", i, err)
		}
		lock, err := r.bytes(int(lockLen))
		if err != nil {
			return nil, fmt.Errorf("output %d lock script: %w", i, err)
		}
		t.Outputs[i] = Output{Value: val, LockScript: lock}
	}

	if t.LockTime, err = r.uint64(); err != nil {
		return nil, fmt.Errorf("locktime: %w", err)
	}
	if !r.eof() {
		return nil, fmt.Errorf("trailing bytes after transaction")
	}
	return t, nil
}

// SigningBytes returns the canonical byte representation used for
// OP_CHECKSIG: identical to Serialize, except every input's UnlockScript is
// omitted. This breaks the circularity of a signature needing to commit to
// itself.
func (t *Transaction) SigningBytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, t.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.LockScript)))
		buf = append(buf, out.LockScript...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.LockTime)
	return buf
}

// SigHash returns the hash CHECKSIG verifies signatures against.
func (t *Transaction) SigHash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}

// IsCoinbase reports whether this transaction is a coinbase (single input
// with the coinbase sentinel outpoint).
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsCoinbase()
}

// reader is a small cursor over a byte slice shared by Deserialize.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) eof() bool { return r.pos >= len(r.buf) }

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("unexpected end of data")
	}
	return nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) fixed(dst []byte) error {
	if err := r.need(len(dst)); err != nil {
		return err
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return b, nil
}
