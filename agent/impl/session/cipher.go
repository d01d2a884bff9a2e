package session

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/ledger"
)

// cipherInfo domain-separates the keystream from any other HKDF use of the
// shared secret.
const cipherInfo = "sentinel-tuple-cipher"

// seal encrypts each value into an independent 32-byte blob: the value is
// little-endian encoded into the first 8 bytes of a zero block, then XORed
// with a keystream block drawn from HKDF(secret, nonce). One keystream block
// per tuple element, so blobs never share stream material.
func seal(secret [32]byte, nonce ledger.U128, values []uint64) ([][32]byte, error) {
	salt := nonce.Bytes()
	stream := hkdf.New(sha256.New, secret[:], salt[:], []byte(cipherInfo))

	blobs := make([][32]byte, len(values))
	for i, value := range values {
		var block [32]byte
		if _, err := io.ReadFull(stream, block[:]); err != nil {
			return nil, xerrors.Errorf("keystream: %v", err)
		}
		var plain [32]byte
		binary.LittleEndian.PutUint64(plain[:8], value)
		for j := range block {
			blobs[i][j] = plain[j] ^ block[j]
		}
	}
	return blobs, nil
}

// open reverses seal. The agent itself never decrypts live traffic; open
// exists for the simulated network and for tests.
func open(secret [32]byte, nonce ledger.U128, blobs [][32]byte) ([]uint64, error) {
	salt := nonce.Bytes()
	stream := hkdf.New(sha256.New, secret[:], salt[:], []byte(cipherInfo))

	values := make([]uint64, len(blobs))
	for i, blob := range blobs {
		var block [32]byte
		if _, err := io.ReadFull(stream, block[:]); err != nil {
			return nil, xerrors.Errorf("keystream: %v", err)
		}
		var plain [32]byte
		for j := range block {
			plain[j] = blob[j] ^ block[j]
		}
		values[i] = binary.LittleEndian.Uint64(plain[:8])
	}
	return values, nil
}
