package block

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Height     uint64     `json:"height"`
	// Target is the proof-of-work difficulty target: a block hash is valid
	// only if it is numerically <= Target when both are read as big-endian
	// integers. Smaller target means more work required. Always 32 bytes.
	Target []byte `json:"-"`
	Nonce  uint64 `json:"nonce"`
}

// headerJSON is the JSON representation of Header with a hex-encoded target.
type headerJSON struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Height     uint64     `json:"height"`
	Target     string     `json:"difficulty_target"`
	Nonce      uint64     `json:"nonce"`
}

// MarshalJSON encodes the header with a hex-encoded difficulty target.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Version:    h.Version,
		PrevHash:   h.PrevHash,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  h.Timestamp,
		Height:     h.Height,
		Target:     fmt.Sprintf("%064x", new(big.Int).SetBytes(h.Target)),
		Nonce:      h.Nonce,
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with a hex-encoded difficulty target.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.PrevHash = j.PrevHash
	h.MerkleRoot = j.MerkleRoot
	h.Timestamp = j.Timestamp
	h.Height = j.Height
	h.Nonce = j.Nonce
	target, ok := new(big.Int).SetString(j.Target, 16)
	if !ok || target.Sign() < 0 || target.BitLen() > 256 {
		return fmt.Errorf("invalid difficulty_target hex %q", j.Target)
	}
	h.Target = TargetBytes(target)
	return nil
}

// TargetBytes renders a difficulty target as a fixed-width 32-byte
// big-endian string, suitable for hashing and storage.
func TargetBytes(target *big.Int) []byte {
	buf := make([]byte, 32)
	target.FillBytes(buf)
	return buf
}

// TargetInt parses the header's stored target bytes back into a big.Int.
func (h *Header) TargetInt() *big.Int {
	return new(big.Int).SetBytes(h.Target)
}

// Hash computes the block header hash: a single SHA-256 over the canonical
// signing bytes.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed to produce the block hash
// and mined against by proof-of-work.
//
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) |
// height(8) | target(32) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 124)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	target := h.Target
	if len(target) != 32 {
		target = TargetBytes(new(big.Int).SetBytes(target))
	}
	buf = append(buf, target...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}
