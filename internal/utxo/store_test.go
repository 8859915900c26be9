package utxo

import (
	"testing"

	"github.com/tsengchain/tsengcoin-core/internal/storage"
	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func makeOutpoint(data string, index uint32) types.Outpoint {
	return types.Outpoint{
		TxID:  crypto.Hash([]byte(data)),
		Index: index,
	}
}

func testAddr() types.Address {
	return types.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
		0x11, 0x12, 0x13, 0x14}
}

func makeUTXO(data string, index uint32, value uint64) *UTXO {
	addr := testAddr()
	return &UTXO{
		Outpoint:   makeOutpoint(data, index),
		Value:      value,
		LockScript: script.MustP2PKHLockScript(addr[:]),
		Height:     1,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 5000)

	err := s.Put(u)
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get(u.Outpoint)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got.Value != u.Value {
		t.Errorf("Value = %d, want %d", got.Value, u.Value)
	}
	if got.Outpoint != u.Outpoint {
		t.Error("Outpoint mismatch")
	}
	if got.Height != u.Height {
		t.Errorf("Height = %d, want %d", got.Height, u.Height)
	}
}

func TestStore_GetNonexistent(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(makeOutpoint("missing", 0))
	if err == nil {
		t.Error("Get() for nonexistent UTXO should return error")
	}
}

func TestStore_Has(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("Has() should be false before Put()")
	}

	s.Put(u)

	ok, err := s.Has(u.Outpoint)
	if err != nil {
		t.Fatalf("Has() error: %v", err)
	}
	if !ok {
		t.Error("Has() should be true after Put()")
	}
}

func TestStore_Delete(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	s.Put(u)

	err := s.Delete(u.Outpoint)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("UTXO should be gone after Delete()")
	}
}

func TestStore_MultipleOutputs(t *testing.T) {
	s := testStore(t)

	// Same tx, different output indices.
	u0 := makeUTXO("tx1", 0, 1000)
	u1 := makeUTXO("tx1", 1, 2000)
	u2 := makeUTXO("tx1", 2, 3000)

	s.Put(u0)
	s.Put(u1)
	s.Put(u2)

	got0, _ := s.Get(u0.Outpoint)
	got1, _ := s.Get(u1.Outpoint)
	got2, _ := s.Get(u2.Outpoint)

	if got0.Value != 1000 || got1.Value != 2000 || got2.Value != 3000 {
		t.Error("values mismatch for multi-output tx")
	}

	// Delete middle one.
	s.Delete(u1.Outpoint)

	ok, _ := s.Has(u1.Outpoint)
	if ok {
		t.Error("deleted output should be gone")
	}

	// Others should remain.
	ok0, _ := s.Has(u0.Outpoint)
	ok2, _ := s.Has(u2.Outpoint)
	if !ok0 || !ok2 {
		t.Error("non-deleted outputs should remain")
	}
}

func TestStore_ImplementsSet(t *testing.T) {
	// Compile-time check that Store satisfies Set.
	var _ Set = (*Store)(nil)
}

func TestStore_AddressIndex_PutAndGet(t *testing.T) {
	s := testStore(t)
	addr := testAddr()

	u1 := makeUTXO("addr-tx1", 0, 1000)
	u2 := makeUTXO("addr-tx2", 0, 2000)

	s.Put(u1)
	s.Put(u2)

	utxos, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("GetByAddress() returned %d, want 2", len(utxos))
	}

	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	if total != 3000 {
		t.Errorf("total = %d, want 3000", total)
	}
}

func TestStore_AddressIndex_DeleteRemovesIndex(t *testing.T) {
	s := testStore(t)
	addr := testAddr()

	u := makeUTXO("addr-del", 0, 1000)
	s.Put(u)

	utxos, _ := s.GetByAddress(addr)
	if len(utxos) != 1 {
		t.Fatalf("expected 1 utxo before delete, got %d", len(utxos))
	}

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	utxos, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(utxos) != 0 {
		t.Errorf("GetByAddress() returned %d after delete, want 0", len(utxos))
	}
}

func TestStore_AddressIndex_DifferentAddresses(t *testing.T) {
	s := testStore(t)

	addr2 := types.Address{0xaa, 0xbb}
	u1 := makeUTXO("other-tx1", 0, 1000)
	u2 := &UTXO{
		Outpoint:   makeOutpoint("other-tx2", 0),
		Value:      2000,
		LockScript: script.MustP2PKHLockScript(addr2[:]),
		Height:     1,
	}

	s.Put(u1)
	s.Put(u2)

	utxos1, _ := s.GetByAddress(testAddr())
	utxos2, _ := s.GetByAddress(addr2)

	if len(utxos1) != 1 {
		t.Errorf("addr1 utxos = %d, want 1", len(utxos1))
	}
	if len(utxos2) != 1 {
		t.Errorf("addr2 utxos = %d, want 1", len(utxos2))
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := testStore(t)
	s.Put(makeUTXO("clear1", 0, 100))
	s.Put(makeUTXO("clear2", 0, 200))

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	utxos, _ := s.GetByAddress(testAddr())
	if len(utxos) != 0 {
		t.Errorf("GetByAddress() after ClearAll() = %d, want 0", len(utxos))
	}
}
