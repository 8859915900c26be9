package chain

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/tsengchain/tsengcoin-core/config"
	"github.com/tsengchain/tsengcoin-core/internal/consensus"
	"github.com/tsengchain/tsengcoin-core/internal/storage"
	"github.com/tsengchain/tsengcoin-core/internal/utxo"
	"github.com/tsengchain/tsengcoin-core/pkg/block"
	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/tx"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// easyTarget is a difficulty target (2^244-1) that about one nonce in 4096
// meets, so tests don't burn real wall-clock time sealing blocks.
var easyTarget, _ = new(big.Int).SetString("0fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", 16)

// testGenesis returns a minimal valid genesis config with a single allocation.
func testGenesis(t *testing.T) (*config.Genesis, types.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())

	return &config.Genesis{
		ChainID:   "test-chain-1",
		ChainName: "Test Chain",
		Timestamp: 1700000000,
		Alloc: map[string]uint64{
			addr.String(): 5000,
		},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{
				BlockTime:               10,
				InitialDifficultyTarget: easyTarget.Text(16),
				DifficultyAdjustWindow:  2016,
				BlockReward:             1000,
			},
		},
	}, addr
}

// testChain creates a chain initialized from a genesis block, with a PoW
// engine whose target mines quickly.
func testChain(t *testing.T) (*Chain, *crypto.PrivateKey, *config.Genesis) {
	t.Helper()

	minerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	pow, err := consensus.NewPoW(easyTarget, 0, 10)
	if err != nil {
		t.Fatalf("NewPoW: %v", err)
	}

	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	ch, err := New(types.ChainID{}, db, utxoStore, pow)
	if err != nil {
		t.Fatalf("New chain: %v", err)
	}

	addr := crypto.AddressFromPubKey(minerKey.PublicKey())
	gen := &config.Genesis{
		ChainID:   "test-chain-1",
		ChainName: "Test Chain",
		Timestamp: 1700000000,
		Alloc: map[string]uint64{
			addr.String(): 5000,
		},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{
				BlockTime:               10,
				InitialDifficultyTarget: easyTarget.Text(16),
				DifficultyAdjustWindow:  2016,
				BlockReward:             1000,
			},
		},
	}
	if err := ch.InitFromGenesis(gen); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	ch.SetConsensusRules(gen.Protocol.Consensus)

	return ch, minerKey, gen
}

// testCoinbaseTx returns a minimal coinbase transaction for test blocks.
func testCoinbaseTx(reward uint64) *tx.Transaction {
	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{Index: types.CoinbaseIndex}}},
		Outputs: []tx.Output{{
			Value:      reward,
			LockScript: script.MustP2PKHLockScript(make([]byte, types.AddressSize)),
		}},
	}
}

// buildSignedBlock mines a block at the next height spending prevOut to key's address.
func buildSignedBlock(t *testing.T, ch *Chain, key *crypto.PrivateKey, prevOut types.Outpoint, value uint64) *block.Block {
	t.Helper()

	coinbase := testCoinbaseTx(1000)

	spendAddr := crypto.AddressFromPubKey(key.PublicKey())
	b := tx.NewBuilder().
		AddInput(prevOut).
		AddOutput(value, script.MustP2PKHLockScript(spendAddr.Bytes()))
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	userTx := b.Build()

	return mineBlock(t, ch, []*tx.Transaction{coinbase, userTx})
}

// mineBlock assembles and seals a block extending the chain's current tip.
func mineBlock(t *testing.T, ch *Chain, txs []*tx.Transaction) *block.Block {
	t.Helper()
	state := ch.State()
	hashes := make([]types.Hash, len(txs))
	for i, transaction := range txs {
		hashes[i] = transaction.Hash()
	}
	merkle := block.ComputeMerkleRoot(hashes)
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   state.TipHash,
		MerkleRoot: merkle,
		Timestamp:  1700000001 + state.Height,
		Height:     state.Height + 1,
		Target:     block.TargetBytes(easyTarget),
	}
	blk := block.NewBlock(header, txs)

	pow := ch.engine.(*consensus.PoW)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return blk
}

// --- Genesis Tests ---

func TestCreateGenesisBlock(t *testing.T) {
	gen, _ := testGenesis(t)
	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}
	if blk.Header.Height != 0 {
		t.Errorf("genesis height = %d, want 0", blk.Header.Height)
	}
	if !blk.Header.PrevHash.IsZero() {
		t.Error("genesis PrevHash should be zero")
	}
	if blk.Header.Timestamp != gen.Timestamp {
		t.Errorf("timestamp = %d, want %d", blk.Header.Timestamp, gen.Timestamp)
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("genesis should have 1 tx, got %d", len(blk.Transactions))
	}
	if blk.Hash().IsZero() {
		t.Error("genesis hash should not be zero")
	}
}

func TestCreateGenesisBlock_WithAlloc(t *testing.T) {
	gen, addr := testGenesis(t)
	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}

	coinbase := blk.Transactions[0]
	if len(coinbase.Outputs) != 1 {
		t.Fatalf("coinbase should have 1 output, got %d", len(coinbase.Outputs))
	}
	out := coinbase.Outputs[0]
	if out.Value != 5000 {
		t.Errorf("output value = %d, want 5000", out.Value)
	}
	hash160, ok := script.IsP2PKH(out.LockScript)
	if !ok {
		t.Fatal("output lock script should be P2PKH")
	}
	if types.Address(hash160) != addr {
		t.Error("output address mismatch")
	}
}

func TestCreateGenesisBlock_NoAlloc(t *testing.T) {
	gen := &config.Genesis{
		ChainID:   "test",
		Timestamp: 1000,
		Alloc:     nil,
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{BlockTime: 10, InitialDifficultyTarget: easyTarget.Text(16)},
		},
	}
	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("should have 1 tx, got %d", len(blk.Transactions))
	}
	if blk.Transactions[0].Outputs[0].Value != 0 {
		t.Errorf("no-alloc coinbase output should be 0, got %d", blk.Transactions[0].Outputs[0].Value)
	}
}

func TestCreateGenesisBlock_NilConfig(t *testing.T) {
	_, err := CreateGenesisBlock(nil)
	if err == nil {
		t.Error("should fail with nil config")
	}
}

func TestCreateGenesisBlock_InvalidAllocAddress(t *testing.T) {
	gen := &config.Genesis{
		ChainID:   "test",
		Timestamp: 1000,
		Alloc:     map[string]uint64{"not-an-address": 100},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{BlockTime: 10, InitialDifficultyTarget: easyTarget.Text(16)},
		},
	}
	_, err := CreateGenesisBlock(gen)
	if err == nil {
		t.Error("should fail with invalid address")
	}
}

func TestCreateGenesisBlock_BadTarget(t *testing.T) {
	gen := &config.Genesis{
		ChainID:   "test",
		Timestamp: 1000,
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{BlockTime: 10, InitialDifficultyTarget: "not-hex"},
		},
	}
	_, err := CreateGenesisBlock(gen)
	if err == nil {
		t.Error("should fail with invalid target")
	}
}

func TestCreateGenesisBlock_Deterministic(t *testing.T) {
	gen, _ := testGenesis(t)
	blk1, _ := CreateGenesisBlock(gen)
	blk2, _ := CreateGenesisBlock(gen)
	if blk1.Hash() != blk2.Hash() {
		t.Error("genesis block should be deterministic")
	}
}

// --- BlockStore Tests ---

func TestBlockStore_PutGetBlock(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	blk := makeTestBlock(t, 1, types.Hash{0x01})
	if err := bs.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := bs.GetBlock(blk.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Hash() != blk.Hash() {
		t.Errorf("hash mismatch: got %s, want %s", got.Hash(), blk.Hash())
	}
}

func TestBlockStore_GetBlockByHeight(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	blk := makeTestBlock(t, 5, types.Hash{0x05})
	bs.PutBlock(blk)

	got, err := bs.GetBlockByHeight(5)
	if err != nil {
		t.Fatalf("GetBlockByHeight: %v", err)
	}
	if got.Hash() != blk.Hash() {
		t.Error("block by height should match")
	}
}

func TestBlockStore_HasBlock(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	blk := makeTestBlock(t, 1, types.Hash{})
	bs.PutBlock(blk)

	has, _ := bs.HasBlock(blk.Hash())
	if !has {
		t.Error("HasBlock should return true")
	}

	has, _ = bs.HasBlock(types.Hash{0xff})
	if has {
		t.Error("HasBlock should return false for unknown hash")
	}
}

func TestBlockStore_SetGetTip(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	hash := types.Hash{0xaa, 0xbb}
	if err := bs.SetTip(hash, 42, 99000); err != nil {
		t.Fatalf("SetTip: %v", err)
	}

	gotHash, gotHeight, gotSupply, err := bs.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if gotHash != hash {
		t.Errorf("tip hash = %s, want %s", gotHash, hash)
	}
	if gotHeight != 42 {
		t.Errorf("tip height = %d, want 42", gotHeight)
	}
	if gotSupply != 99000 {
		t.Errorf("tip supply = %d, want 99000", gotSupply)
	}
}

func TestBlockStore_GetTip_Empty(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	hash, height, supply, err := bs.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if !hash.IsZero() {
		t.Error("empty store tip should be zero hash")
	}
	if height != 0 {
		t.Errorf("empty store height = %d, want 0", height)
	}
	if supply != 0 {
		t.Errorf("empty store supply = %d, want 0", supply)
	}
}

func TestBlockStore_GetBlock_NotFound(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	_, err := bs.GetBlock(types.Hash{0x01})
	if err == nil {
		t.Error("GetBlock should fail for unknown hash")
	}
}

func TestBlockStore_CumulativeWork(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	if w := bs.GetCumulativeWork(); w.Sign() != 0 {
		t.Errorf("empty store cumulative work = %s, want 0", w)
	}

	want := big.NewInt(123456789)
	if err := bs.SetCumulativeWork(want); err != nil {
		t.Fatalf("SetCumulativeWork: %v", err)
	}
	got := bs.GetCumulativeWork()
	if got.Cmp(want) != 0 {
		t.Errorf("cumulative work = %s, want %s", got, want)
	}
}

// --- Transaction Index Tests ---

func TestBlockStore_TxIndex(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	blk := makeTestBlock(t, 1, types.Hash{0x01})
	if err := bs.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	for _, txn := range blk.Transactions {
		txHash := txn.Hash()
		height, blockHash, err := bs.GetTxLocation(txHash)
		if err != nil {
			t.Fatalf("GetTxLocation(%s): %v", txHash, err)
		}
		if height != 1 {
			t.Errorf("tx location height = %d, want 1", height)
		}
		if blockHash != blk.Hash() {
			t.Errorf("tx location blockHash = %s, want %s", blockHash, blk.Hash())
		}
	}
}

func TestBlockStore_TxIndex_NotFound(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	_, _, err := bs.GetTxLocation(types.Hash{0xff})
	if err == nil {
		t.Error("GetTxLocation should fail for unknown tx")
	}
}

func TestBlockStore_DeleteTxIndex(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBlockStore(db)

	blk := makeTestBlock(t, 1, types.Hash{0x01})
	bs.PutBlock(blk)

	txHash := blk.Transactions[0].Hash()

	_, _, err := bs.GetTxLocation(txHash)
	if err != nil {
		t.Fatalf("GetTxLocation: %v", err)
	}

	if err := bs.DeleteTxIndex(txHash); err != nil {
		t.Fatalf("DeleteTxIndex: %v", err)
	}

	_, _, err = bs.GetTxLocation(txHash)
	if err == nil {
		t.Error("GetTxLocation should fail after delete")
	}
}

func TestChain_GetTransaction(t *testing.T) {
	ch, _, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	coinbaseTx := genesisBlock.Transactions[0]
	txHash := coinbaseTx.Hash()

	got, err := ch.GetTransaction(txHash)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Hash() != txHash {
		t.Errorf("GetTransaction hash = %s, want %s", got.Hash(), txHash)
	}
}

func TestChain_GetTransaction_NotFound(t *testing.T) {
	ch, _, _ := testChain(t)

	_, err := ch.GetTransaction(types.Hash{0xde, 0xad})
	if err == nil {
		t.Error("GetTransaction should fail for unknown tx")
	}
}

// --- Chain Init Tests ---

func TestChain_New(t *testing.T) {
	pow, _ := consensus.NewPoW(easyTarget, 0, 10)
	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	ch, err := New(types.ChainID{}, db, utxoStore, pow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !ch.TipHash().IsZero() {
		t.Error("fresh chain tip should be zero")
	}
	if ch.Height() != 0 {
		t.Errorf("fresh chain height = %d, want 0", ch.Height())
	}
}

func TestChain_New_NilDB(t *testing.T) {
	pow, _ := consensus.NewPoW(easyTarget, 0, 10)
	utxoStore := utxo.NewStore(storage.NewMemory())

	_, err := New(types.ChainID{}, nil, utxoStore, pow)
	if err == nil {
		t.Error("should fail with nil db")
	}
}

func TestChain_New_NilUTXOSet(t *testing.T) {
	pow, _ := consensus.NewPoW(easyTarget, 0, 10)
	db := storage.NewMemory()

	_, err := New(types.ChainID{}, db, nil, pow)
	if err == nil {
		t.Error("should fail with nil utxo set")
	}
}

func TestChain_New_NilEngine(t *testing.T) {
	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	_, err := New(types.ChainID{}, db, utxoStore, nil)
	if err == nil {
		t.Error("should fail with nil engine")
	}
}

func TestChain_InitFromGenesis(t *testing.T) {
	ch, _, gen := testChain(t)

	if ch.Height() != 0 {
		t.Errorf("height = %d, want 0", ch.Height())
	}
	if ch.TipHash().IsZero() {
		t.Error("tip should not be zero after genesis init")
	}

	blk, err := ch.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight(0): %v", err)
	}
	if blk.Header.Height != 0 {
		t.Errorf("genesis block height = %d", blk.Header.Height)
	}
	if blk.Header.Timestamp != gen.Timestamp {
		t.Errorf("genesis timestamp = %d, want %d", blk.Header.Timestamp, gen.Timestamp)
	}
}

func TestChain_InitFromGenesis_AllocCreatesUTXOs(t *testing.T) {
	ch, _, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	coinbaseTx := genesisBlock.Transactions[0]
	txHash := coinbaseTx.Hash()

	outpoint := types.Outpoint{TxID: txHash, Index: 0}
	has, err := ch.utxos.Has(outpoint)
	if err != nil {
		t.Fatalf("UTXO Has: %v", err)
	}
	if !has {
		t.Error("genesis allocation should create a UTXO")
	}

	u, err := ch.utxos.Get(outpoint)
	if err != nil {
		t.Fatalf("UTXO Get: %v", err)
	}
	if u.Value != 5000 {
		t.Errorf("UTXO value = %d, want 5000", u.Value)
	}
}

func TestChain_InitFromGenesis_DoubleInit(t *testing.T) {
	ch, _, gen := testChain(t)

	err := ch.InitFromGenesis(gen)
	if err == nil {
		t.Error("double InitFromGenesis should fail")
	}
}

// --- ProcessBlock Tests ---

func TestChain_ProcessBlock(t *testing.T) {
	ch, minerKey, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	coinbaseTx := genesisBlock.Transactions[0]
	prevOut := types.Outpoint{TxID: coinbaseTx.Hash(), Index: 0}

	blk := buildSignedBlock(t, ch, minerKey, prevOut, 4000)

	if err := ch.ProcessBlock(blk); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	if ch.Height() != 1 {
		t.Errorf("height = %d, want 1", ch.Height())
	}
	if ch.TipHash() != blk.Hash() {
		t.Error("tip should be the new block")
	}
}

func TestChain_ProcessBlock_DuplicateBlock(t *testing.T) {
	ch, minerKey, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	prevOut := types.Outpoint{TxID: genesisBlock.Transactions[0].Hash(), Index: 0}

	blk := buildSignedBlock(t, ch, minerKey, prevOut, 4000)

	ch.ProcessBlock(blk)

	err := ch.ProcessBlock(blk)
	if !errors.Is(err, ErrBlockKnown) {
		t.Errorf("expected ErrBlockKnown, got: %v", err)
	}
}

func TestChain_ProcessBlock_BadPrevHash(t *testing.T) {
	ch, _, _ := testChain(t)

	coinbase := testCoinbaseTx(1000)
	txs := []*tx.Transaction{coinbase}
	hashes := []types.Hash{coinbase.Hash()}
	merkle := block.ComputeMerkleRoot(hashes)
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{0xff, 0xff},
		MerkleRoot: merkle,
		Timestamp:  1700000002,
		Height:     1,
		Target:     block.TargetBytes(easyTarget),
	}
	blk := block.NewBlock(header, txs)

	pow := ch.engine.(*consensus.PoW)
	pow.Seal(blk)

	err := ch.ProcessBlock(blk)
	if !errors.Is(err, ErrPrevNotFound) {
		t.Errorf("expected ErrPrevNotFound, got: %v", err)
	}
}

func TestChain_ProcessBlock_BadHeight(t *testing.T) {
	ch, _, _ := testChain(t)

	coinbase := testCoinbaseTx(1000)
	txs := []*tx.Transaction{coinbase}
	hashes := []types.Hash{coinbase.Hash()}

	state := ch.State()
	merkle := block.ComputeMerkleRoot(hashes)
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   state.TipHash,
		MerkleRoot: merkle,
		Timestamp:  1700000002,
		Height:     99,
		Target:     block.TargetBytes(easyTarget),
	}
	blk := block.NewBlock(header, txs)

	pow := ch.engine.(*consensus.PoW)
	pow.Seal(blk)

	err := ch.ProcessBlock(blk)
	if !errors.Is(err, ErrBadHeight) {
		t.Errorf("expected ErrBadHeight, got: %v", err)
	}
}

func TestChain_ProcessBlock_Unsealed(t *testing.T) {
	ch, _, _ := testChain(t)

	coinbase := testCoinbaseTx(1000)
	txs := []*tx.Transaction{coinbase}
	hashes := []types.Hash{coinbase.Hash()}

	state := ch.State()
	merkle := block.ComputeMerkleRoot(hashes)
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   state.TipHash,
		MerkleRoot: merkle,
		Timestamp:  1700000002,
		Height:     1,
		Target:     block.TargetBytes(easyTarget),
		Nonce:      0, // Not mined — will not meet the target.
	}
	blk := block.NewBlock(header, txs)

	err := ch.ProcessBlock(blk)
	if err == nil {
		t.Error("ProcessBlock should fail for an unmined header")
	}
}

func TestChain_ProcessBlock_NilBlock(t *testing.T) {
	ch, _, _ := testChain(t)

	err := ch.ProcessBlock(nil)
	if err == nil {
		t.Error("ProcessBlock(nil) should fail")
	}
}

func TestChain_ProcessBlock_MultipleBlocks(t *testing.T) {
	ch, minerKey, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	prevOut := types.Outpoint{TxID: genesisBlock.Transactions[0].Hash(), Index: 0}

	blk1 := buildSignedBlock(t, ch, minerKey, prevOut, 4000)
	if err := ch.ProcessBlock(blk1); err != nil {
		t.Fatalf("ProcessBlock(1): %v", err)
	}

	blk1Tx := blk1.Transactions[1]
	prevOut2 := types.Outpoint{TxID: blk1Tx.Hash(), Index: 0}
	blk2 := buildSignedBlock(t, ch, minerKey, prevOut2, 3000)
	if err := ch.ProcessBlock(blk2); err != nil {
		t.Fatalf("ProcessBlock(2): %v", err)
	}

	if ch.Height() != 2 {
		t.Errorf("height = %d, want 2", ch.Height())
	}

	got1, _ := ch.GetBlockByHeight(1)
	got2, _ := ch.GetBlockByHeight(2)
	if got1.Hash() != blk1.Hash() {
		t.Error("block 1 hash mismatch")
	}
	if got2.Hash() != blk2.Hash() {
		t.Error("block 2 hash mismatch")
	}
}

func TestChain_ProcessBlock_UTXOSpent(t *testing.T) {
	ch, minerKey, _ := testChain(t)

	genesisBlock, _ := ch.GetBlockByHeight(0)
	prevOut := types.Outpoint{TxID: genesisBlock.Transactions[0].Hash(), Index: 0}

	blk := buildSignedBlock(t, ch, minerKey, prevOut, 4000)
	ch.ProcessBlock(blk)

	has, _ := ch.utxos.Has(prevOut)
	if has {
		t.Error("spent UTXO should be deleted")
	}

	newOut := types.Outpoint{TxID: blk.Transactions[1].Hash(), Index: 0}
	has, _ = ch.utxos.Has(newOut)
	if !has {
		t.Error("new UTXO should exist")
	}

	u, _ := ch.utxos.Get(newOut)
	if u.Value != 4000 {
		t.Errorf("new UTXO value = %d, want 4000", u.Value)
	}
	if u.Height != 1 {
		t.Errorf("new UTXO height = %d, want 1", u.Height)
	}
}

func TestChain_GetBlock(t *testing.T) {
	ch, _, _ := testChain(t)

	tip := ch.TipHash()
	blk, err := ch.GetBlock(tip)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if blk.Hash() != tip {
		t.Error("GetBlock should return the genesis block")
	}
}

func TestChain_State(t *testing.T) {
	ch, _, _ := testChain(t)

	s := ch.State()
	if s.Height != 0 {
		t.Errorf("state height = %d, want 0", s.Height)
	}
	if s.TipHash.IsZero() {
		t.Error("state tip should not be zero after genesis")
	}
}

// --- Config Genesis Hash Tests ---

func TestGenesisConfig_Hash(t *testing.T) {
	gen, _ := testGenesis(t)
	hash, err := gen.Hash()
	if err != nil {
		t.Fatalf("Genesis.Hash: %v", err)
	}
	if hash.IsZero() {
		t.Error("genesis config hash should not be zero")
	}

	hash2, _ := gen.Hash()
	if hash != hash2 {
		t.Error("genesis config hash should be deterministic")
	}
}

func TestGenesisConfig_Hash_DifferentConfigs(t *testing.T) {
	gen1 := &config.Genesis{
		ChainID:   "chain-a",
		Timestamp: 1000,
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{BlockTime: 10, InitialDifficultyTarget: easyTarget.Text(16)},
		},
	}
	gen2 := &config.Genesis{
		ChainID:   "chain-b",
		Timestamp: 2000,
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{BlockTime: 10, InitialDifficultyTarget: easyTarget.Text(16)},
		},
	}

	h1, _ := gen1.Hash()
	h2, _ := gen2.Hash()
	if h1 == h2 {
		t.Error("different genesis configs should produce different hashes")
	}
}

// --- State Tests ---

func TestState_IsGenesis(t *testing.T) {
	s := &State{}
	if !s.IsGenesis() {
		t.Error("zero state should be genesis")
	}

	s.Height = 1
	if s.IsGenesis() {
		t.Error("non-zero height is not genesis")
	}

	s.Height = 0
	s.TipHash = types.Hash{0x01}
	if s.IsGenesis() {
		t.Error("non-zero tip is not genesis")
	}
}

func TestBlockWork(t *testing.T) {
	harder := blockWork(big.NewInt(100))
	easier := blockWork(big.NewInt(10000))
	if harder.Cmp(easier) <= 0 {
		t.Error("a smaller target should yield more work")
	}
	if blockWork(nil).Sign() <= 0 {
		t.Error("blockWork(nil) should return a positive fallback")
	}
}

// --- Supply Cap Tests ---

func TestProcessBlock_SupplyCapEnforced(t *testing.T) {
	minerKey, _ := crypto.GenerateKey()
	pow, _ := consensus.NewPoW(easyTarget, 0, 10)

	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)
	ch, _ := New(types.ChainID{}, db, utxoStore, pow)

	addr := crypto.AddressFromPubKey(minerKey.PublicKey())
	gen := &config.Genesis{
		ChainID:   "test-supply",
		ChainName: "Test",
		Timestamp: 1700000000,
		Alloc:     map[string]uint64{addr.String(): 5000},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{
				BlockTime:               10,
				InitialDifficultyTarget: easyTarget.Text(16),
				DifficultyAdjustWindow:  2016,
				BlockReward:             1000,
				MaxSupply:               7000,
			},
		},
	}
	if err := ch.InitFromGenesis(gen); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	ch.SetConsensusRules(gen.Protocol.Consensus)

	// Supply starts at 5000 (alloc). With max supply 7000:
	// Block 1: reward=1000 -> supply=6000
	// Block 2: reward=1000 -> supply=7000 (cap reached).
	for i := 0; i < 2; i++ {
		blk := mineBlock(t, ch, []*tx.Transaction{testCoinbaseTx(1000)})
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("block %d: %v", i+1, err)
		}
	}

	// A third block that tries to mint beyond cap must be rejected.
	blk3 := mineBlock(t, ch, []*tx.Transaction{testCoinbaseTx(1)})
	if err := ch.ProcessBlock(blk3); !errors.Is(err, ErrCoinbaseRewardExceeded) {
		t.Fatalf("expected ErrCoinbaseRewardExceeded at cap, got: %v", err)
	}

	if ch.Supply() != 7000 {
		t.Errorf("supply = %d, want 7000", ch.Supply())
	}
}

// --- Future Timestamp Tests ---

func TestProcessBlock_FutureTimestamp(t *testing.T) {
	ch, _, _ := testChain(t)

	coinbase := testCoinbaseTx(1000)
	txs := []*tx.Transaction{coinbase}
	hashes := []types.Hash{coinbase.Hash()}
	state := ch.State()
	merkle := block.ComputeMerkleRoot(hashes)

	futureTime := uint64(time.Now().Add(3 * time.Hour).Unix())
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   state.TipHash,
		MerkleRoot: merkle,
		Timestamp:  futureTime,
		Height:     1,
		Target:     block.TargetBytes(easyTarget),
	}
	blk := block.NewBlock(header, txs)
	pow := ch.engine.(*consensus.PoW)
	pow.Seal(blk)

	err := ch.ProcessBlock(blk)
	if !errors.Is(err, ErrTimestampTooFuture) {
		t.Errorf("expected ErrTimestampTooFuture, got: %v", err)
	}
}

func TestProcessBlock_CoinbaseMultipleInputs_Rejected(t *testing.T) {
	ch, _, _ := testChain(t)

	coinbase := &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{
			{PrevOut: types.Outpoint{Index: types.CoinbaseIndex}},
			{PrevOut: types.Outpoint{Index: types.CoinbaseIndex}},
		},
		Outputs: []tx.Output{{
			Value:      1000,
			LockScript: script.MustP2PKHLockScript(make([]byte, 20)),
		}},
	}

	blk := mineBlock(t, ch, []*tx.Transaction{coinbase})
	err := ch.ProcessBlock(blk)
	if err == nil {
		t.Fatal("expected error for coinbase with more than one input")
	}
}

// --- ConfirmedTxHandler / RevertedTxHandler Tests ---

func TestChain_ConfirmedTxHandler(t *testing.T) {
	ch, minerKey, _ := testChain(t)

	var confirmed []*tx.Transaction
	ch.SetConfirmedTxHandler(func(txs []*tx.Transaction) {
		confirmed = append(confirmed, txs...)
	})

	genesisBlock, _ := ch.GetBlockByHeight(0)
	prevOut := types.Outpoint{TxID: genesisBlock.Transactions[0].Hash(), Index: 0}
	blk := buildSignedBlock(t, ch, minerKey, prevOut, 4000)

	if err := ch.ProcessBlock(blk); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	if len(confirmed) != 1 {
		t.Fatalf("confirmed handler should receive 1 tx, got %d", len(confirmed))
	}
	if confirmed[0].Hash() != blk.Transactions[1].Hash() {
		t.Error("confirmed tx hash mismatch")
	}
}

// --- Helpers ---

func makeTestBlock(t *testing.T, height uint64, prevHash types.Hash) *block.Block {
	t.Helper()
	key, _ := crypto.GenerateKey()
	b := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(1000, script.MustP2PKHLockScript(make([]byte, 20)))
	b.Sign(key)
	transaction := b.Build()

	merkle := block.ComputeMerkleRoot([]types.Hash{transaction.Hash()})
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   prevHash,
		MerkleRoot: merkle,
		Timestamp:  1700000000 + height,
		Height:     height,
		Target:     block.TargetBytes(easyTarget),
	}
	return block.NewBlock(header, []*tx.Transaction{transaction})
}
