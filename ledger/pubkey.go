package ledger

import (
	"bytes"

	"github.com/mr-tron/base58"
	"golang.org/x/xerrors"
)

// PublicKey is a 32-byte account address on the ledger.
type PublicKey [32]byte

// SentinelProgramID is the on-chain address of the sentinel monitoring program.
var SentinelProgramID = MustParsePublicKey("SentDeFi11111111111111111111111111111111111")

// MXEProgramID is the address of the MPC execution environment program that
// owns the cluster, mempool and computation accounts.
var MXEProgramID = MustParsePublicKey("Arcium1111111111111111111111111111111111111")

// SystemProgramID is the native account-creation program.
var SystemProgramID = MustParsePublicKey("11111111111111111111111111111111")

// ParsePublicKey decodes a base58-encoded address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, xerrors.Errorf("invalid address %s: %v", s, err)
	}
	if len(raw) != len(pk) {
		return pk, xerrors.Errorf("invalid address %s: %d bytes", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePublicKey decodes a base58 address and panics on failure. It is
// reserved for package-level constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	var pk PublicKey
	if len(raw) != len(pk) {
		return pk, xerrors.Errorf("invalid public key length %d", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// Bytes returns the raw 32 bytes of the key.
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// Equal reports whether two keys hold the same bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// IsZero reports whether the key is all zero bytes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// String returns the base58 form of the key.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}
