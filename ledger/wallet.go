package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"os"

	"golang.org/x/xerrors"
)

// Wallet holds the agent's ed25519 signing credential.
type Wallet struct {
	priv ed25519.PrivateKey
}

// NewWallet wraps an existing private key.
func NewWallet(priv ed25519.PrivateKey) *Wallet {
	return &Wallet{priv: priv}
}

// GenerateWallet creates a fresh random wallet.
func GenerateWallet() (*Wallet, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv}, nil
}

// LoadWallet reads a keypair file: a JSON array of 64 bytes, secret key
// followed by public key, as written by standard ledger tooling.
func LoadWallet(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read wallet %s: %v", path, err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, xerrors.Errorf("parse wallet %s: %v", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, xerrors.Errorf("wallet %s: expected %d bytes, got %d",
			path, ed25519.PrivateKeySize, len(ints))
	}
	priv := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, xerrors.Errorf("wallet %s: byte %d out of range", path, i)
		}
		priv[i] = byte(v)
	}
	return &Wallet{priv: priv}, nil
}

// Save writes the keypair file in the same JSON byte-array format LoadWallet
// reads.
func (w *Wallet) Save(path string) error {
	ints := make([]int, len(w.priv))
	for i, b := range w.priv {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// PublicKey returns the wallet's address.
func (w *Wallet) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], w.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs a message with the wallet key. Signing is deterministic, which
// the encryption session relies on to recover its key pair after a restart.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.priv, message)
}
