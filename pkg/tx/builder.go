package tx

import (
	"fmt"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 1},
	}
}

// AddInput adds an input referencing a previous output. Its unlock script
// is filled in later by Sign/SignMulti.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput adds an output with a value and lock script.
func (b *Builder) AddOutput(value uint64, lockScript []byte) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, LockScript: lockScript})
	return b
}

// AddP2PKHOutput adds a standard pay-to-public-key-hash output.
func (b *Builder) AddP2PKHOutput(value uint64, addr types.Address) *Builder {
	var hash160 [20]byte
	copy(hash160[:], addr[:])
	return b.AddOutput(value, script.P2PKHLockScript(hash160))
}

// SetLockTime sets the transaction lock time.
func (b *Builder) SetLockTime(lockTime uint64) *Builder {
	b.tx.LockTime = lockTime
	return b
}

// Sign signs all non-coinbase inputs with the provided private key,
// building a standard P2PKH unlock script for each (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	sigHash := b.tx.SigHash()
	sig, err := key.Sign(sigHash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		if b.tx.Inputs[i].PrevOut.IsCoinbase() {
			continue
		}
		b.tx.Inputs[i].UnlockScript = script.P2PKHUnlockScript(sig, pubKey)
	}
	return nil
}

// SignMulti signs each input with the key that owns its outpoint.
// outpointAddr maps each input's outpoint to the address that owns it.
// signers maps each address to the private key that can spend from it.
func (b *Builder) SignMulti(
	signers map[types.Address]*crypto.PrivateKey,
	outpointAddr map[types.Outpoint]types.Address,
) error {
	sigHash := b.tx.SigHash()

	type sigPub struct {
		sig    []byte
		pubKey []byte
	}
	cache := make(map[types.Address]*sigPub)

	for i := range b.tx.Inputs {
		if b.tx.Inputs[i].PrevOut.IsCoinbase() {
			continue
		}

		addr, ok := outpointAddr[b.tx.Inputs[i].PrevOut]
		if !ok {
			return fmt.Errorf("no address mapping for input %d outpoint", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}

		sp, cached := cache[addr]
		if !cached {
			sig, err := key.Sign(sigHash[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			sp = &sigPub{sig: sig, pubKey: key.PublicKey()}
			cache[addr] = sp
		}
		b.tx.Inputs[i].UnlockScript = script.P2PKHUnlockScript(sp.sig, sp.pubKey)
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate — call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
