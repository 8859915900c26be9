package rpc

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/tsengchain/tsengcoin-core/config"
	"github.com/tsengchain/tsengcoin-core/internal/utxo"
	"github.com/tsengchain/tsengcoin-core/internal/wallet"
	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/tx"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// requireWallet returns an error if the wallet keystore is not enabled.
func (s *Server) requireWallet() *Error {
	if s.keystore == nil {
		return &Error{Code: CodeInternalError, Message: "wallet not enabled (start node with --wallet)"}
	}
	return nil
}

// walletSpendable returns a wallet address's mature, spendable UTXOs, plus
// the spendable and immature totals (immature coinbase outputs are held out
// of the returned slice entirely so callers never need to re-filter).
func (s *Server) walletSpendable(addr types.Address, currentHeight uint64) (spendable []*utxo.UTXO, spendableTotal, immatureTotal uint64, err error) {
	all, err := s.utxos.GetByAddress(addr)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, u := range all {
		if u.Coinbase && (currentHeight < u.Height || currentHeight-u.Height < config.CoinbaseMaturity) {
			immatureTotal += u.Value
			continue
		}
		spendableTotal += u.Value
		spendable = append(spendable, u)
	}
	return spendable, spendableTotal, immatureTotal, nil
}

func (s *Server) handleWalletCreate(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletCreateParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	addr, err := s.keystore.Create(params.Name, []byte(params.Password))
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("create wallet: %v", err)}
	}

	return &WalletCreateResult{Address: addr.String()}, nil
}

func (s *Server) handleWalletImport(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletImportParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" || params.PrivateKey == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name, password, and private_key are required"}
	}

	keyBytes, hexErr := hex.DecodeString(params.PrivateKey)
	if hexErr != nil || len(keyBytes) != 32 {
		return nil, &Error{Code: CodeInvalidParams, Message: "private_key must be 32-byte hex"}
	}

	key, keyErr := crypto.PrivateKeyFromBytes(keyBytes)
	if keyErr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid private key: %v", keyErr)}
	}
	defer key.Zero()

	addr, err := s.keystore.Import(params.Name, []byte(params.Password), key)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("import wallet: %v", err)}
	}

	return &WalletImportResult{Address: addr.String()}, nil
}

func (s *Server) handleWalletList(_ *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	names, listErr := s.keystore.List()
	if listErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list wallets: %v", listErr)}
	}
	if names == nil {
		names = []string{}
	}

	return &WalletListResult{Wallets: names}, nil
}

// handleWalletAddress returns the single address a wallet file holds.
func (s *Server) handleWalletAddress(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletAddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	addr, err := s.keystore.Address(params.Name, []byte(params.Password))
	if err != nil {
		s.logger.Debug().Err(err).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}

	return &WalletAddressResult{Address: addr.String()}, nil
}

func (s *Server) handleWalletSend(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletSendParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" || params.To == "" || params.Amount == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "name, password, to, and amount are required"}
	}

	recipientAddr, addrErr := decodeAddress(params.To)
	if addrErr != nil {
		return nil, addrErr
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	defer key.Zero()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	spendable, spendableTotal, immatureTotal, collectErr := s.walletSpendable(addr, s.chain.Height())
	if collectErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("collect utxos: %v", collectErr)}
	}
	if len(spendable) == 0 {
		return nil, &Error{
			Code: CodeInvalidParams,
			Message: fmt.Sprintf(
				"no spendable UTXOs found for wallet (spendable=%d, immature=%d)",
				spendableTotal, immatureTotal,
			),
		}
	}

	feeRate := s.genesis.Protocol.Consensus.MinFeeRate
	fee := tx.EstimateTxFee(1, 2, feeRate) // 1 input, 2 outputs (recipient + change)
	selection, selErr := wallet.SelectCoins(spendable, params.Amount+fee)
	if selErr != nil {
		return nil, &Error{
			Code: CodeInvalidParams,
			Message: fmt.Sprintf(
				"coin selection: %v (spendable=%d, immature=%d, need=%d)",
				selErr, spendableTotal, immatureTotal, params.Amount+fee,
			),
		}
	}
	// Recalculate fee with the actual input count.
	fee = tx.EstimateTxFee(len(selection.Inputs), 2, feeRate)
	if selection.Total < params.Amount+fee {
		selection, selErr = wallet.SelectCoins(spendable, params.Amount+fee)
		if selErr != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("coin selection: %v", selErr)}
		}
		fee = tx.EstimateTxFee(len(selection.Inputs), 2, feeRate)
	}
	change := selection.Total - params.Amount - fee

	builder := tx.NewBuilder()
	for _, input := range selection.Inputs {
		builder.AddInput(input.Outpoint)
	}
	builder.AddP2PKHOutput(params.Amount, recipientAddr)
	if change > 0 {
		// Change returns to the wallet's single address — there is no
		// separate change-address derivation in a single-keypair wallet.
		builder.AddP2PKHOutput(change, addr)
	}

	if err := builder.Sign(key); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("sign transaction: %v", err)}
	}

	transaction := builder.Build()

	if _, poolErr := s.pool.Add(transaction); poolErr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("rejected: %v", poolErr)}
	}

	if s.p2pNode != nil {
		if err := s.p2pNode.BroadcastTx(transaction); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to broadcast transaction")
		}
	}

	return &WalletSendResult{TxHash: transaction.Hash().String()}, nil
}

func (s *Server) handleWalletConsolidate(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletConsolidateParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	maxInputs := params.MaxInputs
	if maxInputs == 0 {
		maxInputs = 500
	}
	if maxInputs > config.MaxTxInputs {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("max_inputs too high: %d (max %d)", maxInputs, config.MaxTxInputs)}
	}
	if maxInputs < 2 {
		return nil, &Error{Code: CodeInvalidParams, Message: "max_inputs must be at least 2"}
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	defer key.Zero()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	spendable, spendableTotal, immatureTotal, collectErr := s.walletSpendable(addr, s.chain.Height())
	if collectErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("collect utxos: %v", collectErr)}
	}
	if len(spendable) < 2 {
		return nil, &Error{
			Code: CodeInvalidParams,
			Message: fmt.Sprintf(
				"not enough spendable UTXOs to consolidate (count=%d, spendable=%d, immature=%d)",
				len(spendable), spendableTotal, immatureTotal,
			),
		}
	}

	// Consolidation prefers smallest UTXOs first.
	sort.Slice(spendable, func(i, j int) bool {
		return spendable[i].Value < spendable[j].Value
	})

	limit := int(maxInputs)
	if limit > len(spendable) {
		limit = len(spendable)
	}
	if limit < 2 {
		return nil, &Error{Code: CodeInvalidParams, Message: "not enough UTXOs to consolidate"}
	}

	selected := spendable[:limit]
	var total uint64
	for _, u := range selected {
		if total > ^uint64(0)-u.Value {
			return nil, &Error{Code: CodeInternalError, Message: "input value overflow"}
		}
		total += u.Value
	}

	feeRate := s.genesis.Protocol.Consensus.MinFeeRate
	fee := tx.EstimateTxFee(len(selected), 1, feeRate)
	if total <= fee {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("selected UTXOs too small: total=%d, fee=%d", total, fee)}
	}

	builder := tx.NewBuilder()
	for _, input := range selected {
		builder.AddInput(input.Outpoint)
	}
	outputAmount := total - fee
	builder.AddP2PKHOutput(outputAmount, addr)

	if err := builder.Sign(key); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("sign transaction: %v", err)}
	}

	transaction := builder.Build()
	if _, poolErr := s.pool.Add(transaction); poolErr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("rejected: %v", poolErr)}
	}

	if s.p2pNode != nil {
		if err := s.p2pNode.BroadcastTx(transaction); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to broadcast consolidation tx")
		}
	}

	return &WalletConsolidateResult{
		TxHash:       transaction.Hash().String(),
		InputsUsed:   uint32(limit),
		InputTotal:   total,
		OutputAmount: outputAmount,
		Fee:          fee,
	}, nil
}

func (s *Server) handleWalletSendMany(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletSendManyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}
	if len(params.Recipients) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "at least one recipient is required"}
	}

	type parsed struct {
		addr   types.Address
		amount uint64
	}
	recipients := make([]parsed, len(params.Recipients))
	var totalAmount uint64
	for i, r := range params.Recipients {
		if r.To == "" || r.Amount == 0 {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("recipient %d: to and amount are required", i)}
		}
		addr, addrErr := decodeAddress(r.To)
		if addrErr != nil {
			return nil, addrErr
		}
		recipients[i] = parsed{addr: addr, amount: r.Amount}
		totalAmount += r.Amount
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	defer key.Zero()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	spendable, _, _, collectErr := s.walletSpendable(addr, s.chain.Height())
	if collectErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("collect utxos: %v", collectErr)}
	}
	if len(spendable) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "no UTXOs found for wallet"}
	}

	feeRate := s.genesis.Protocol.Consensus.MinFeeRate
	numOutputs := len(recipients) + 1 // recipients + change
	fee := tx.EstimateTxFee(1, numOutputs, feeRate)
	selection, selErr := wallet.SelectCoins(spendable, totalAmount+fee)
	if selErr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("coin selection: %v", selErr)}
	}
	fee = tx.EstimateTxFee(len(selection.Inputs), numOutputs, feeRate)
	if selection.Total < totalAmount+fee {
		selection, selErr = wallet.SelectCoins(spendable, totalAmount+fee)
		if selErr != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("coin selection: %v", selErr)}
		}
		fee = tx.EstimateTxFee(len(selection.Inputs), numOutputs, feeRate)
	}
	change := selection.Total - totalAmount - fee

	builder := tx.NewBuilder()
	for _, input := range selection.Inputs {
		builder.AddInput(input.Outpoint)
	}
	for _, r := range recipients {
		builder.AddP2PKHOutput(r.amount, r.addr)
	}
	if change > 0 {
		builder.AddP2PKHOutput(change, addr)
	}

	if err := builder.Sign(key); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("sign transaction: %v", err)}
	}

	transaction := builder.Build()
	if _, poolErr := s.pool.Add(transaction); poolErr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("rejected: %v", poolErr)}
	}

	if s.p2pNode != nil {
		if err := s.p2pNode.BroadcastTx(transaction); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to broadcast transaction")
		}
	}

	return &WalletSendManyResult{TxHash: transaction.Hash().String()}, nil
}

func (s *Server) handleWalletExportKey(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletExportKeyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	defer key.Zero()

	pubKey := key.PublicKey()
	addr := crypto.AddressFromPubKey(pubKey)

	return &WalletExportKeyResult{
		PrivateKey: hex.EncodeToString(key.Serialize()),
		PubKey:     hex.EncodeToString(pubKey),
		Address:    addr.String(),
	}, nil
}

// ── Wallet transaction history ──────────────────────────────────────────

func (s *Server) handleWalletGetHistory(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletGetHistoryParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	key.Zero()

	addrSet := map[types.Address]bool{addr: true}

	// If we have a persistent index, use the indexed path.
	if s.txIndex != nil {
		return s.getHistoryIndexed(params.Name, "root", addrSet, limit, offset)
	}

	// Fallback: scan blocks from tip down (newest first).
	return s.getHistoryFallback(addrSet, limit, offset)
}

// classifyFn adapts classifyTx to the interface{}-typed signature
// WalletTxIndex.IndexBlocks expects, so the index stays agnostic to the
// concrete transaction/block types.
func (s *Server) classifyFn(transaction interface{}, txIdx int, addrSet map[types.Address]bool, blk interface{}) *TxHistoryEntry {
	txn, ok := transaction.(*tx.Transaction)
	if !ok {
		return nil
	}
	blkTyped, ok := blk.(interface{ Hash() types.Hash })
	if !ok {
		return nil
	}
	return s.classifyTx(txn, txIdx, addrSet, blkTyped)
}

// getHistoryIndexed uses the persistent WalletTxIndex. It incrementally
// indexes new blocks since the last call, handles reorgs by rolling back
// entries above the current tip, then queries the index.
func (s *Server) getHistoryIndexed(walletName, chainID string, addrSet map[types.Address]bool, limit, offset int) (interface{}, *Error) {
	tipHeight := s.chain.Height()

	meta, err := s.txIndex.GetMeta(walletName, chainID)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("read index: %v", err)}
	}

	// Reorg detection: if tip is below last indexed height, roll back.
	if meta.Count > 0 && tipHeight < meta.LastHeight {
		if err := s.txIndex.DeleteAbove(walletName, chainID, tipHeight); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("reorg rollback: %v", err)}
		}
		meta.LastHeight = tipHeight
	}

	// Incremental indexing: scan blocks from (lastHeight+1) to tipHeight.
	var startHeight uint64
	if meta.Count == 0 {
		startHeight = 0 // Fresh index, scan from genesis.
	} else {
		startHeight = meta.LastHeight + 1
	}

	if startHeight <= tipHeight {
		if _, err := s.txIndex.IndexBlocks(walletName, chainID, s.chain, startHeight, tipHeight, addrSet, s.classifyFn); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("index blocks: %v", err)}
		}
	}

	entries, total, err := s.txIndex.Query(walletName, chainID, limit, offset)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("query index: %v", err)}
	}

	return &WalletGetHistoryResult{Total: total, Entries: entries}, nil
}

// getHistoryFallback scans blocks from tip down without an index.
// Capped at 1000 entries to bound response time.
func (s *Server) getHistoryFallback(addrSet map[types.Address]bool, limit, offset int) (interface{}, *Error) {
	const maxEntries = 1000
	tipHeight := s.chain.Height()
	var entries []TxHistoryEntry

	for h := int64(tipHeight); h >= 0; h-- {
		blk, err := s.chain.GetBlockByHeight(uint64(h))
		if err != nil {
			continue
		}

		blockHash := blk.Hash().String()
		blockTime := blk.Header.Timestamp

		for txIdx, transaction := range blk.Transactions {
			entry := s.classifyTx(transaction, txIdx, addrSet, blk)
			if entry == nil {
				continue
			}
			entry.BlockHash = blockHash
			entry.Height = uint64(h)
			entry.Timestamp = blockTime
			entry.Confirmed = true
			entries = append(entries, *entry)
		}

		if len(entries) >= maxEntries {
			break
		}
	}

	total := len(entries)

	if offset >= total {
		return &WalletGetHistoryResult{Total: total, Entries: []TxHistoryEntry{}}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &WalletGetHistoryResult{Total: total, Entries: entries[offset:end]}, nil
}

// scriptAddress extracts the destination address from a P2PKH lock script.
func scriptAddress(lockScript []byte) *types.Address {
	hash160, ok := script.IsP2PKH(lockScript)
	if !ok {
		return nil
	}
	addr := types.Address(hash160)
	return &addr
}

// unlockScriptPubKey extracts the public key pushed by a standard P2PKH
// unlock script (a pushed signature followed by a pushed public key).
func unlockScriptPubKey(unlock []byte) []byte {
	if len(unlock) < 2 || unlock[0] != byte(script.OP_PUSHDATA) {
		return nil
	}
	sigLen := int(unlock[1])
	off := 2 + sigLen
	if off+2 > len(unlock) || unlock[off] != byte(script.OP_PUSHDATA) {
		return nil
	}
	pubLen := int(unlock[off+1])
	start := off + 2
	if start+pubLen > len(unlock) {
		return nil
	}
	return unlock[start : start+pubLen]
}

// classifyTx determines if a transaction is relevant to the wallet and classifies it.
func (s *Server) classifyTx(transaction *tx.Transaction, txIdx int, addrSet map[types.Address]bool, blk interface{ Hash() types.Hash }) *TxHistoryEntry {
	txHash := transaction.Hash().String()
	isCoinbase := txIdx == 0 && len(transaction.Inputs) > 0 && transaction.Inputs[0].PrevOut.IsCoinbase()

	var ourInputSum, otherOutputSum, ourOutputSum uint64
	var hasOurInputs bool
	var firstTo, firstFrom string

	for _, out := range transaction.Outputs {
		addr := scriptAddress(out.LockScript)
		isOurs := addr != nil && addrSet[*addr]
		if isOurs {
			ourOutputSum += out.Value
		} else {
			otherOutputSum += out.Value
			if firstTo == "" && addr != nil {
				firstTo = addr.String()
			}
		}
	}

	inputAddrs := make(map[types.Address]bool)
	if !isCoinbase {
		for _, in := range transaction.Inputs {
			if in.PrevOut.IsCoinbase() {
				continue
			}
			pubKey := unlockScriptPubKey(in.UnlockScript)
			if len(pubKey) != 33 {
				continue
			}
			addr := crypto.AddressFromPubKey(pubKey)
			inputAddrs[addr] = true
			if addrSet[addr] {
				hasOurInputs = true
				prevTx, err := s.chain.GetTransaction(in.PrevOut.TxID)
				if err == nil && int(in.PrevOut.Index) < len(prevTx.Outputs) {
					ourInputSum += prevTx.Outputs[in.PrevOut.Index].Value
				}
			} else if firstFrom == "" {
				firstFrom = addr.String()
			}
		}
	}

	var entry *TxHistoryEntry
	switch {
	case isCoinbase && ourOutputSum > 0:
		entry = &TxHistoryEntry{TxHash: txHash, Type: "mined", Amount: ourOutputSum}

	case hasOurInputs:
		fee := safeSub(ourInputSum, totalOutputValue(transaction))
		sentAmount := otherOutputSum
		sentTo := firstTo

		// Self-send: all outputs return to our address. Use the first
		// output going to a non-input address as the sent amount (the
		// builder adds the recipient output before the change output).
		if otherOutputSum == 0 {
			for _, out := range transaction.Outputs {
				addr := scriptAddress(out.LockScript)
				if addr != nil && !inputAddrs[*addr] {
					sentAmount = out.Value
					sentTo = addr.String()
					break
				}
			}
		}

		entry = &TxHistoryEntry{TxHash: txHash, Type: "sent", Amount: sentAmount, Fee: fee, To: sentTo}

	case ourOutputSum > 0:
		entry = &TxHistoryEntry{TxHash: txHash, Type: "received", Amount: ourOutputSum, From: firstFrom}
	}

	return entry
}

func totalOutputValue(t *tx.Transaction) uint64 {
	var sum uint64
	for _, out := range t.Outputs {
		sum += out.Value
	}
	return sum
}

func safeSub(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return 0
}

// handleWalletRescan re-indexes a wallet's transaction history from the
// given height. Since a wallet holds exactly one address, this never
// discovers new addresses — it only rebuilds the indexed history entries.
func (s *Server) handleWalletRescan(req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletRescanParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}

	key, loadErr := s.keystore.Unlock(params.Name, []byte(params.Password))
	if loadErr != nil {
		s.logger.Debug().Err(loadErr).Msg("wallet unlock failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	key.Zero()

	tipHeight := s.chain.Height()
	fromHeight := params.FromHeight
	if fromHeight > tipHeight {
		fromHeight = tipHeight
	}

	if s.txIndex != nil {
		if fromHeight == 0 {
			if err := s.txIndex.ClearWallet(params.Name, "root"); err != nil {
				return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("clear index: %v", err)}
			}
		} else if err := s.txIndex.DeleteAbove(params.Name, "root", fromHeight-1); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("reset index: %v", err)}
		}

		addrSet := map[types.Address]bool{addr: true}
		count, err := s.txIndex.IndexBlocks(params.Name, "root", s.chain, fromHeight, tipHeight, addrSet, s.classifyFn)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("index blocks: %v", err)}
		}
		found := 0
		if count > 0 {
			found = 1
		}
		return &WalletRescanResult{AddressesFound: found, FromHeight: fromHeight, ToHeight: tipHeight}, nil
	}

	// No persistent index available: just report whether the address
	// appears anywhere in the requested range.
	found := 0
	for h := fromHeight; h <= tipHeight; h++ {
		blk, err := s.chain.GetBlockByHeight(h)
		if err != nil {
			continue
		}
		for _, txn := range blk.Transactions {
			for _, out := range txn.Outputs {
				if a := scriptAddress(out.LockScript); a != nil && *a == addr {
					found = 1
				}
			}
		}
		if found == 1 {
			break
		}
	}

	return &WalletRescanResult{AddressesFound: found, FromHeight: fromHeight, ToHeight: tipHeight}, nil
}
