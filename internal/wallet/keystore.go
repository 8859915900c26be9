// Package wallet implements encrypted single-keypair wallet storage.
package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsengchain/tsengcoin-core/pkg/crypto"
	"github.com/tsengchain/tsengcoin-core/pkg/types"
)

// Keystore manages encrypted wallet files on disk. Each wallet holds exactly
// one secp256k1 keypair — there is no BIP-32/39 derivation.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// walletPath returns the file path for a wallet by name.
func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create generates a new keypair and writes it to an encrypted wallet file.
// Returns the new wallet's address.
func (ks *Keystore) Create(name string, password []byte) (types.Address, error) {
	return ks.createWithKey(name, password, nil)
}

// Import writes an existing private key to a new encrypted wallet file.
func (ks *Keystore) Import(name string, password []byte, key *crypto.PrivateKey) (types.Address, error) {
	return ks.createWithKey(name, password, key)
}

func (ks *Keystore) createWithKey(name string, password []byte, key *crypto.PrivateKey) (types.Address, error) {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return types.Address{}, fmt.Errorf("wallet %q already exists", name)
	}

	if key == nil {
		var err error
		key, err = crypto.GenerateKey()
		if err != nil {
			return types.Address{}, fmt.Errorf("generate key: %w", err)
		}
	}
	defer key.Zero()

	// Store the private key scalar and compressed public key concatenated.
	// Unlock reads only the 32-byte scalar; the public key is re-derived.
	plaintext := append(append([]byte{}, key.Serialize()...), key.PublicKey()...)

	encrypted, err := Encrypt(plaintext, password)
	if err != nil {
		return types.Address{}, fmt.Errorf("encrypt key: %w", err)
	}

	if err := os.WriteFile(path, encrypted, 0600); err != nil {
		return types.Address{}, fmt.Errorf("write wallet: %w", err)
	}

	return crypto.AddressFromPubKey(key.PublicKey()), nil
}

// Unlock decrypts a wallet file and returns its private key.
func (ks *Keystore) Unlock(name string, password []byte) (*crypto.PrivateKey, error) {
	path := ks.walletPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}

	plaintext, err := Decrypt(data, password)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	if len(plaintext) < 32 {
		return nil, fmt.Errorf("corrupt wallet file: key material too short")
	}

	return crypto.PrivateKeyFromBytes(plaintext[:32])
}

// Address returns the address of a wallet. It needs the password: the
// wallet is unlocked and the address is derived from the private key.
func (ks *Keystore) Address(name string, password []byte) (types.Address, error) {
	key, err := ks.Unlock(name, password)
	if err != nil {
		return types.Address{}, err
	}
	defer key.Zero()
	return crypto.AddressFromPubKey(key.PublicKey()), nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}
