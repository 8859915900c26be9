// tsengcoin-cli is a command-line client for interacting with a tsengcoind
// node, plus a few standalone utilities (create-address, run-script) that
// need no running node at all.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tsengchain/tsengcoin-core/config"
	"github.com/tsengchain/tsengcoin-core/internal/p2p"
	"github.com/tsengchain/tsengcoin-core/internal/rpc"
	"github.com/tsengchain/tsengcoin-core/internal/rpcclient"
	"github.com/tsengchain/tsengcoin-core/internal/storage"
	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/script"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/term"
)

// Exit codes, per the documented CLI contract.
const (
	exitOK       = 0
	exitUserErr  = 1
	exitInternal = 2
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUserErr)
	}

	rpcURL := "http://127.0.0.1:8545"
	network := "mainnet"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(exitUserErr)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "start-seed":
		cmdStartSeed(cmdArgs, network)
	case "connect":
		cmdConnect(cmdArgs, network)
	case "create-address":
		cmdCreateAddress()
	case "getblock":
		cmdGetBlock(rpcURL, cmdArgs)
	case "balance":
		cmdBalance(rpcURL, cmdArgs)
	case "send":
		cmdSend(rpcURL, cmdArgs)
	case "run-script":
		cmdRunScript(cmdArgs)
	case "help", "--help", "-h":
		if len(cmdArgs) > 0 {
			helpFor(cmdArgs[0])
		} else {
			usage()
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(exitUserErr)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: tsengcoin-cli [global flags] <command> [args]

Global flags:
  --rpc <url>       RPC endpoint of a running tsengcoind (default: http://127.0.0.1:8545)
  --network <net>   mainnet (default) or testnet

Commands:
  start-seed                        Run a bootstrap-only P2P node (no RPC, no mining)
  connect <multiaddr>               Dial a peer and report whether the handshake succeeds
  create-address                    Generate a new keypair and print its address
  getblock <hash>                   Fetch a block by hash from a running node
  balance <addr>                    Fetch an address's UTXO balance from a running node
  send <addr> <amount> <fee>        Send coins from the node's default wallet
  run-script [--show-stack] <tok…>  Assemble and execute a script from opcode/literal tokens
  help [command]                    Show this message, or detail on one command
`)
}

func helpFor(cmd string) {
	switch cmd {
	case "run-script":
		fmt.Fprint(os.Stderr, `run-script [--show-stack] <tokens...>

Tokens are split into an unlock half and a lock half by a literal "|"
token. Each token is either:
  - an opcode mnemonic (OP_TRUE, OP_ADD, OP_HASH160, OP_CHECKSIG, ...)
  - a 0x-prefixed hex literal, pushed as data (OP_PUSHDATA)

Example:
  run-script --show-stack 0x03 | OP_DUP 0x03 OP_EQUAL

With no lock half, the whole token list is run as a single script (no "|").
`)
	default:
		usage()
	}
}

// ── create-address ───────────────────────────────────────────────────────

func cmdCreateAddress() {
	key, err := crypto.GenerateKey()
	if err != nil {
		fatal("generate key: %v", err)
	}
	defer key.Zero()

	addr := crypto.AddressFromPubKey(key.PublicKey())
	fmt.Printf("Address:     %s\n", addr.String())
	fmt.Printf("Public key:  %s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Printf("Private key: %s\n", hex.EncodeToString(key.Serialize()))
	fmt.Println("\nStore the private key somewhere safe; tsengcoin-cli does not save it.")
}

// ── getblock ──────────────────────────────────────────────────────────────

func cmdGetBlock(rpcURL string, args []string) {
	if len(args) < 1 {
		fatal("Usage: tsengcoin-cli getblock <hash>")
	}

	client := rpcclient.New(rpcURL)
	var blk rpc.BlockResult
	if err := client.Call("chain_getBlockByHash", rpc.HashParam{Hash: args[0]}, &blk); err != nil {
		fatal("chain_getBlockByHash: %v", err)
	}

	fmt.Printf("Hash:        %s\n", blk.Hash)
	fmt.Printf("Height:      %d\n", blk.Header.Height)
	fmt.Printf("Prev:        %s\n", blk.Header.PrevHash.String())
	fmt.Printf("Merkle root: %s\n", blk.Header.MerkleRoot.String())
	fmt.Printf("Timestamp:   %d\n", blk.Header.Timestamp)
	fmt.Printf("Nonce:       %d\n", blk.Header.Nonce)
	fmt.Printf("Txs:         %d\n", len(blk.Transactions))
	for i, t := range blk.Transactions {
		fmt.Printf("  [%d] %s\n", i, t.Hash)
	}
}

// ── balance ───────────────────────────────────────────────────────────────

func cmdBalance(rpcURL string, args []string) {
	if len(args) < 1 {
		fatal("Usage: tsengcoin-cli balance <address>")
	}

	client := rpcclient.New(rpcURL)
	var bal rpc.BalanceResult
	if err := client.Call("utxo_getBalance", rpc.AddressParam{Address: args[0]}, &bal); err != nil {
		fatal("utxo_getBalance: %v", err)
	}

	fmt.Printf("Address:   %s\n", bal.Address)
	fmt.Printf("Balance:   %s\n", formatAmount(bal.Balance))
	fmt.Printf("Spendable: %s\n", formatAmount(bal.Spendable))
	fmt.Printf("Immature:  %s\n", formatAmount(bal.Immature))
}

// ── send ──────────────────────────────────────────────────────────────────

// defaultWalletName is the single wallet tsengcoind's --wallet flag manages;
// tsengcoin-cli has no concept of multiple named wallets.
const defaultWalletName = "default"

func cmdSend(rpcURL string, args []string) {
	if len(args) < 3 {
		fatal("Usage: tsengcoin-cli send <addr> <amount> <fee>")
	}

	if _, err := types.ParseAddress(args[0]); err != nil {
		fatal("invalid recipient address: %v", err)
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	feeRate, err := parseAmount(args[2])
	if err != nil {
		fatal("invalid fee: %v", err)
	}

	password, err := readPassword("Enter wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	client := rpcclient.New(rpcURL)
	var result rpc.WalletSendResult
	if err := client.Call("wallet_send", rpc.WalletSendParam{
		Name:     defaultWalletName,
		Password: string(password),
		To:       args[0],
		Amount:   amount,
		FeeRate:  feeRate,
	}, &result); err != nil {
		fatalInternal("wallet_send: %v", err)
	}

	fmt.Printf("Submitted: %s\n", result.TxHash)
}

// ── run-script ──────────────────────────────────────────────────────────────

func cmdRunScript(args []string) {
	showStack := false
	var tokens []string
	for _, a := range args {
		if a == "--show-stack" {
			showStack = true
			continue
		}
		tokens = append(tokens, a)
	}
	if len(tokens) == 0 {
		fatal("Usage: tsengcoin-cli run-script [--show-stack] <tokens...>")
	}

	var unlockToks, lockToks []string
	if sep := indexOf(tokens, "|"); sep >= 0 {
		unlockToks = tokens[:sep]
		lockToks = tokens[sep+1:]
	} else {
		lockToks = tokens
	}

	unlock, err := assemble(unlockToks)
	if err != nil {
		fatal("unlock script: %v", err)
	}
	lock, err := assemble(lockToks)
	if err != nil {
		fatal("lock script: %v", err)
	}

	var sigHash [32]byte
	onStep := func(op script.Op, stack []script.Value) {
		if !showStack {
			return
		}
		fmt.Printf("%-20s %s\n", op, formatStack(stack))
	}

	ok, err := script.ExecuteTrace(unlock, lock, sigHash, nil, onStep)
	if err != nil {
		fmt.Printf("Script failed: %v\n", err)
		os.Exit(exitUserErr)
	}
	if !ok {
		fmt.Println("Script result: false")
		os.Exit(exitUserErr)
	}
	fmt.Println("Script result: true")
}

func assemble(tokens []string) ([]byte, error) {
	b := script.NewBuilder()
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
			data, err := hex.DecodeString(tok[2:])
			if err != nil {
				return nil, fmt.Errorf("bad hex literal %q: %w", tok, err)
			}
			b.PushData(data)
			continue
		}
		op, ok := opcodeByName(tok)
		if !ok {
			return nil, fmt.Errorf("unknown token %q", tok)
		}
		b.Op(op)
	}
	return b.Bytes(), nil
}

func opcodeByName(name string) (script.Op, bool) {
	for _, op := range []script.Op{
		script.OP_TRUE, script.OP_FALSE, script.OP_ADD, script.OP_SUB,
		script.OP_EQUAL, script.OP_REQUIRE_EQUAL, script.OP_DUP,
		script.OP_HASH160, script.OP_CHECKSIG,
	} {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}

func formatStack(stack []script.Value) string {
	if len(stack) == 0 {
		return "[]"
	}
	parts := make([]string, len(stack))
	for i, v := range stack {
		if v.Kind == script.KindBool {
			parts[i] = strconv.FormatBool(v.Bool)
		} else {
			parts[i] = "0x" + hex.EncodeToString(v.Bytes)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// ── start-seed / connect ──────────────────────────────────────────────────

func cmdStartSeed(args []string, network string) {
	fs := flag.NewFlagSet("start-seed", flag.ExitOnError)
	port := fs.Int("port", 26556, "P2P listen port")
	dataDir := fs.String("datadir", config.DefaultDataDir(), "Data directory (for peer persistence)")
	fs.Parse(args)

	genesis := config.GenesisFor(config.NetworkType(network))
	genesisHash, _ := genesis.Hash()

	db, err := storage.NewBadger(*dataDir + "/" + network + "/seed")
	if err != nil {
		fatalInternal("open seed store: %v", err)
	}
	defer db.Close()

	node := p2p.New(p2p.Config{
		Port:       *port,
		MaxPeers:   256,
		DB:         db,
		DHTServer:  true,
		NetworkID:  genesis.ChainID,
		DataDir:    *dataDir,
	})
	node.SetGenesisHash(genesisHash)
	node.SetHeightFn(func() uint64 { return 0 })

	if err := node.Start(); err != nil {
		fatalInternal("start p2p: %v", err)
	}
	defer node.Stop()

	fmt.Printf("Seed node listening on port %d\n", *port)
	fmt.Printf("Peer ID: %s\n", node.ID().String())
	for _, addr := range node.Addrs() {
		fmt.Printf("  %s\n", addr)
	}
	fmt.Println("\nShare one of the addresses above as a --seeds entry. Ctrl+C to stop.")

	select {}
}

func cmdConnect(args []string, network string) {
	if len(args) < 1 {
		fatal("Usage: tsengcoin-cli connect <multiaddr>")
	}

	maddr, err := multiaddr.NewMultiaddr(args[0])
	if err != nil {
		fatal("invalid multiaddr: %v", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		fatal("multiaddr has no peer ID: %v", err)
	}

	genesis := config.GenesisFor(config.NetworkType(network))
	genesisHash, _ := genesis.Hash()

	node := p2p.New(p2p.Config{
		Port:       0,
		MaxPeers:   8,
		NoDiscover: true,
		NetworkID:  genesis.ChainID,
	})
	node.SetGenesisHash(genesisHash)
	node.SetHeightFn(func() uint64 { return 0 })

	if err := node.Start(); err != nil {
		fatalInternal("start p2p: %v", err)
	}
	defer node.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := node.Host().Connect(ctx, *info); err != nil {
		fmt.Printf("Could not reach %s: %v\n", args[0], err)
		os.Exit(exitUserErr)
	}
	fmt.Printf("Connected to %s\n", info.ID.String())
}

// ── shared helpers ────────────────────────────────────────────────────────

func formatAmount(units uint64) string {
	whole := units / config.Coin
	frac := units % config.Coin
	return fmt.Sprintf("%d.%012d", whole, frac)
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}

	parts := strings.SplitN(s, ".", 2)

	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid whole part: %w", err)
	}

	var frac uint64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > config.Decimals {
			return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
		}
		fracStr = fracStr + strings.Repeat("0", config.Decimals-len(fracStr))
		frac, err = strconv.ParseUint(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	total := whole*config.Coin + frac
	if (total-frac)/config.Coin != whole {
		return 0, fmt.Errorf("amount overflow")
	}
	return total, nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(exitUserErr)
}

func fatalInternal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(exitInternal)
}
