package tx

import (
	"math"
	"testing"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

func testLockScript(addr types.Address) []byte {
	return script.MustP2PKHLockScript(addr.Bytes())
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	transaction := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, LockScript: testLockScript(types.Address{0x02})}},
	}

	h1 := transaction.Hash()
	h2 := transaction.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithContent(t *testing.T) {
	tx1 := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, LockScript: testLockScript(types.Address{0x02})}},
	}
	tx2 := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 2000, LockScript: testLockScript(types.Address{0x02})}},
	}

	if tx1.Hash() == tx2.Hash() {
		t.Error("different transactions should have different hashes")
	}
}

func TestTransaction_Hash_ChangesWithUnlockScript(t *testing.T) {
	transaction := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, LockScript: testLockScript(types.Address{0x02})}},
	}

	h1 := transaction.Hash()
	transaction.Inputs[0].UnlockScript = []byte("some unlock script")
	h2 := transaction.Hash()

	if h1 == h2 {
		t.Error("Hash() should change when an unlock script is added")
	}
}

func TestTransaction_SigHash_IgnoresUnlockScript(t *testing.T) {
	transaction := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, LockScript: testLockScript(types.Address{0x02})}},
	}

	h1 := transaction.SigHash()
	transaction.Inputs[0].UnlockScript = []byte("some unlock script")
	h2 := transaction.SigHash()

	if h1 != h2 {
		t.Error("SigHash() should not change when an unlock script is added")
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	transaction := &Transaction{
		Outputs: []Output{
			{Value: 1000},
			{Value: 2000},
			{Value: 3000},
		},
	}
	got, err := transaction.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 6000 {
		t.Errorf("TotalOutputValue() = %d, want 6000", got)
	}
}

func TestTransaction_TotalOutputValue_Empty(t *testing.T) {
	transaction := &Transaction{}
	got, err := transaction.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 0 {
		t.Errorf("TotalOutputValue() empty = %d, want 0", got)
	}
}

func TestTransaction_TotalOutputValue_Overflow(t *testing.T) {
	transaction := &Transaction{
		Outputs: []Output{
			{Value: math.MaxUint64},
			{Value: 1},
		},
	}
	_, err := transaction.TotalOutputValue()
	if err == nil {
		t.Error("TotalOutputValue() should return error on overflow")
	}
}

func TestTransaction_IsCoinbase(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{{PrevOut: types.Outpoint{Index: types.CoinbaseIndex}}},
	}
	if !transaction.IsCoinbase() {
		t.Error("IsCoinbase() = false, want true")
	}

	transaction.Inputs = append(transaction.Inputs, Input{PrevOut: types.Outpoint{TxID: types.Hash{0x01}}})
	if transaction.IsCoinbase() {
		t.Error("IsCoinbase() = true for multi-input transaction, want false")
	}
}

func TestTransaction_SerializeDeserialize(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddP2PKHOutput(5000, addr).
		SetLockTime(42)
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	decoded, err := Deserialize(transaction.Serialize())
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if decoded.Hash() != transaction.Hash() {
		t.Error("round-tripped transaction should hash the same")
	}
	if decoded.LockTime != 42 {
		t.Errorf("locktime = %d, want 42", decoded.LockTime)
	}
}

func TestBuilder_BuildAndSign(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: crypto.Hash([]byte("prev tx")), Index: 0}

	b := NewBuilder().
		AddInput(prevOut).
		AddP2PKHOutput(5000, addr)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	transaction := b.Build()

	if len(transaction.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(transaction.Outputs))
	}
	if transaction.Version != 1 {
		t.Errorf("version = %d, want 1", transaction.Version)
	}
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	lockScript := script.MustP2PKHLockScript(addr.Bytes())
	ok, err := script.Execute(transaction.Inputs[0].UnlockScript, lockScript, transaction.SigHash(), nil)
	if err != nil || !ok {
		t.Errorf("signed input should satisfy its own lock script: ok=%v err=%v", ok, err)
	}
}

func TestBuilder_MultipleInputsOutputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddInput(types.Outpoint{TxID: types.Hash{0x02}, Index: 1}).
		AddP2PKHOutput(3000, addr).
		AddP2PKHOutput(2000, addr).
		SetLockTime(100)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	if len(transaction.Inputs) != 2 {
		t.Errorf("input count = %d, want 2", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 2 {
		t.Errorf("output count = %d, want 2", len(transaction.Outputs))
	}
	if transaction.LockTime != 100 {
		t.Errorf("locktime = %d, want 100", transaction.LockTime)
	}
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestBuilder_SignMulti(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	addr1 := crypto.AddressFromPubKey(key1.PublicKey())
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 1}

	b := NewBuilder().
		AddInput(out1).
		AddInput(out2).
		AddP2PKHOutput(3000, types.Address{0x99})

	signers := map[types.Address]*crypto.PrivateKey{
		addr1: key1,
		addr2: key2,
	}
	outpointAddr := map[types.Outpoint]types.Address{
		out1: addr1,
		out2: addr2,
	}

	if err := b.SignMulti(signers, outpointAddr); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	// Each input is signed with a different key, so the unlock scripts differ.
	if string(transaction.Inputs[0].UnlockScript) == string(transaction.Inputs[1].UnlockScript) {
		t.Error("inputs signed with different keys should have different unlock scripts")
	}

	lock1 := script.MustP2PKHLockScript(addr1.Bytes())
	lock2 := script.MustP2PKHLockScript(addr2.Bytes())
	sigHash := transaction.SigHash()

	if ok, err := script.Execute(transaction.Inputs[0].UnlockScript, lock1, sigHash, nil); err != nil || !ok {
		t.Errorf("input 0 should satisfy its lock script: ok=%v err=%v", ok, err)
	}
	if ok, err := script.Execute(transaction.Inputs[1].UnlockScript, lock2, sigHash, nil); err != nil || !ok {
		t.Errorf("input 1 should satisfy its lock script: ok=%v err=%v", ok, err)
	}
}

func TestBuilder_SignMulti_SameKeyTwoInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 0}

	b := NewBuilder().
		AddInput(out1).
		AddInput(out2).
		AddP2PKHOutput(5000, types.Address{0x99})

	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	outpointAddr := map[types.Outpoint]types.Address{
		out1: addr,
		out2: addr,
	}

	if err := b.SignMulti(signers, outpointAddr); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()

	// Same signing key over the same sighash produces the same unlock script (cached).
	if string(transaction.Inputs[0].UnlockScript) != string(transaction.Inputs[1].UnlockScript) {
		t.Error("same key should produce the same unlock script (cache)")
	}
}

func TestBuilder_SignMulti_MissingAddress(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}

	b := NewBuilder().
		AddInput(out1).
		AddP2PKHOutput(1000, types.Address{})

	// Missing outpointAddr mapping.
	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	outpointAddr := map[types.Outpoint]types.Address{}

	err := b.SignMulti(signers, outpointAddr)
	if err == nil {
		t.Fatal("expected error for missing address mapping")
	}
}

func TestBuilder_SignMulti_MissingSigner(t *testing.T) {
	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	addr := types.Address{0xAA}

	b := NewBuilder().
		AddInput(out1).
		AddP2PKHOutput(1000, types.Address{})

	// Have address mapping but no signer.
	signers := map[types.Address]*crypto.PrivateKey{}
	outpointAddr := map[types.Outpoint]types.Address{out1: addr}

	err := b.SignMulti(signers, outpointAddr)
	if err == nil {
		t.Fatal("expected error for missing signer")
	}
}
