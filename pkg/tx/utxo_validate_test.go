package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// mockUTXOProvider is a simple in-memory UTXO provider for testing.
type mockUTXOProvider struct {
	utxos map[types.Outpoint]mockUTXO
}

type mockUTXO struct {
	value      uint64
	lockScript []byte
}

func newMockProvider() *mockUTXOProvider {
	return &mockUTXOProvider{utxos: make(map[types.Outpoint]mockUTXO)}
}

func (m *mockUTXOProvider) add(op types.Outpoint, value uint64, lockScript []byte) {
	m.utxos[op] = mockUTXO{value: value, lockScript: lockScript}
}

func (m *mockUTXOProvider) GetUTXO(op types.Outpoint) (uint64, []byte, error) {
	u, ok := m.utxos[op]
	if !ok {
		return 0, nil, fmt.Errorf("not found")
	}
	return u.value, u.lockScript, nil
}

func (m *mockUTXOProvider) HasUTXO(op types.Outpoint) bool {
	_, ok := m.utxos[op]
	return ok
}

func TestValidateWithUTXOs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, script.MustP2PKHLockScript(addr.Bytes()))

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(4000, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}

func TestValidateWithUTXOs_ZeroFee(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 3000, script.MustP2PKHLockScript(addr.Bytes()))

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(3000, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
}

func TestValidateWithUTXOs_InputNotFound(t *testing.T) {
	key, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider() // Empty — no UTXOs.

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(1000, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got: %v", err)
	}
}

func TestValidateWithUTXOs_InsufficientFee(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 1000, script.MustP2PKHLockScript(addr.Bytes()))

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(2000, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrInsufficientFee) {
		t.Errorf("expected ErrInsufficientFee, got: %v", err)
	}
}

func TestValidateWithUTXOs_ScriptMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	// UTXO locked to a different address than the key derives.
	wrongAddr := types.Address{0xFF}

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, script.MustP2PKHLockScript(wrongAddr.Bytes()))

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(4000, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrScriptFailed) {
		t.Errorf("expected ErrScriptFailed, got: %v", err)
	}
}

func TestValidateWithUTXOs_MultipleInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	prevOut2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut1, 3000, script.MustP2PKHLockScript(addr.Bytes()))
	provider.add(prevOut2, 2000, script.MustP2PKHLockScript(addr.Bytes()))

	b := NewBuilder().
		AddInput(prevOut1).
		AddInput(prevOut2).
		AddP2PKHOutput(4500, types.Address{0xAA})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 500 {
		t.Errorf("fee = %d, want 500", fee)
	}
}

func TestValidateWithUTXOs_WrongSigningKey(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	// UTXO is locked to key2's address...
	provider.add(prevOut, 5000, script.MustP2PKHLockScript(addr2.Bytes()))

	// ...but signed with key1. The unlock script carries key1's pubkey, whose
	// hash160 does not match the lock script's required hash.
	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(4000, types.Address{0xAA})
	if err := b.Sign(key1); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrScriptFailed) {
		t.Errorf("expected ErrScriptFailed, got: %v", err)
	}
}

func TestValidateWithUTXOs_StructuralFailure(t *testing.T) {
	// Transaction with no inputs should fail structural validation.
	transaction := &Transaction{
		Version: 1,
		Outputs: []Output{{Value: 1000, LockScript: testLockScript(types.Address{})}},
	}
	provider := newMockProvider()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestValidateWithUTXOs_RejectsCoinbaseInput(t *testing.T) {
	// A standalone transaction carrying the coinbase sentinel must be
	// rejected here: only a block's dedicated coinbase transaction may
	// use it, and that transaction is never routed through
	// ValidateWithUTXOs (the chain validates it separately). Without this
	// check a submitted transaction could mint arbitrary value.
	transaction := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{Index: types.CoinbaseIndex}, UnlockScript: []byte{0x00}}},
		Outputs: []Output{{Value: 50000, LockScript: testLockScript(types.Address{0xAA})}},
	}
	provider := newMockProvider()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrUnexpectedCoinbase) {
		t.Fatalf("ValidateWithUTXOs: got %v, want %v", err, ErrUnexpectedCoinbase)
	}
}

func TestValidateWithUTXOs_ArbitraryLockScript(t *testing.T) {
	// A bare, scriptless lock — the unlock script alone must leave a single
	// true value on the stack.
	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, nil)

	transaction := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(4000, types.Address{0xAA}).
		Build()
	transaction.Inputs[0].UnlockScript = script.NewBuilder().Op(script.OP_TRUE).Bytes()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}
