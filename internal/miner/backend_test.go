package miner

import (
	"context"
	"math/big"
	"testing"

	"github.com/tsengchain/tsengcoin-core/internal/consensus"
	"github.com/tsengchain/tsengcoin-core/pkg/block"
)

func TestCPUBackend_Seal(t *testing.T) {
	pow := testPoWEngine(t)
	backend := newCPUBackend(pow)

	header := &block.Header{Version: block.CurrentVersion, Height: 1}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	blk := block.NewBlock(header, nil)

	if err := backend.Seal(context.Background(), blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Errorf("sealed header does not verify: %v", err)
	}
}

func TestCPUBackend_Seal_Cancelled(t *testing.T) {
	// An impossibly hard target (1) never finds a nonce, so cancelling the
	// context must stop the search instead of blocking forever.
	pow, err := consensus.NewPoW(big.NewInt(1), 0, 10)
	if err != nil {
		t.Fatalf("NewPoW: %v", err)
	}
	backend := newCPUBackend(pow)

	header := &block.Header{Version: block.CurrentVersion, Height: 1}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	blk := block.NewBlock(header, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := backend.Seal(ctx, blk); err == nil {
		t.Fatal("expected Seal to return an error for a cancelled context")
	}
}

func TestMiner_DefaultsToCPUBackend(t *testing.T) {
	m, _ := testMiner(t)
	if _, ok := m.backend.(*cpuBackend); !ok {
		t.Fatalf("Miner.New should default to *cpuBackend, got %T", m.backend)
	}
}

func TestMiner_SetBackend(t *testing.T) {
	m, _ := testMiner(t)
	sentinel := &recordingBackend{}
	m.SetBackend(sentinel)

	if _, err := m.ProduceBlock(); err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if !sentinel.called {
		t.Error("ProduceBlock should have sealed through the replaced backend")
	}
}

// recordingBackend is a Backend stand-in (e.g. for an external GPU/socket
// backend) that just seals with a zero nonce and records that it ran.
type recordingBackend struct {
	called bool
}

func (r *recordingBackend) Seal(ctx context.Context, blk *block.Block) error {
	r.called = true
	blk.Header.Nonce = 0
	return nil
}

var _ Backend = (*recordingBackend)(nil)
