package session

import (
	"context"
	"crypto/sha256"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/ledger"
)

// domainMessage separates the session key derivation from any other use of
// the wallet's signature. Changing it rotates every derived key.
const domainMessage = "sentinel-encryption-key-v1"

// ErrKeyUnavailable reports that the network's published key could not be
// fetched within the retry budget. Fatal at startup.
var ErrKeyUnavailable = xerrors.New("network encryption key unavailable")

// Session is the agent's per-run encryption state: a deterministic x25519
// key pair and the shared secret negotiated with the MPC network. Immutable
// after Negotiate.
type Session struct {
	priv   [32]byte
	pub    [32]byte
	shared [32]byte
}

// DeriveKeyPair derives the session key pair from the wallet. The wallet's
// deterministic signature over the domain message is hashed into an x25519
// scalar, so the same wallet always recovers the same pair and no secret
// needs persisting across restarts.
func DeriveKeyPair(wallet *ledger.Wallet) (priv, pub [32]byte, err error) {
	sig := wallet.Sign([]byte(domainMessage))
	priv = sha256.Sum256(sig)

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, xerrors.Errorf("derive public key: %v", err)
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// Negotiate builds a session: derives the key pair, fetches the network's
// published key from the MXE account with bounded retry, and computes the
// shared secret. Exhausting the retry budget yields ErrKeyUnavailable.
func Negotiate(ctx context.Context, transport ledger.Transport, policy agent.RetryPolicy,
	wallet *ledger.Wallet) (*Session, error) {

	priv, pub, err := DeriveKeyPair(wallet)
	if err != nil {
		return nil, err
	}

	mxeAddr, err := ledger.MXEAccountAddress()
	if err != nil {
		return nil, err
	}

	var networkKey [32]byte
	err = policy.Do(ctx, func() error {
		data, exists, err := transport.GetAccountInfo(ctx, mxeAddr)
		if err != nil {
			log.Warn().Msgf("fetch network key: %v", err)
			return err
		}
		if !exists {
			return xerrors.Errorf("MXE account %s not found", mxeAddr)
		}
		key, ok := ledger.DecodeMXEKey(data)
		if !ok {
			return xerrors.Errorf("MXE account %s holds no key", mxeAddr)
		}
		networkKey = key
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, ErrKeyUnavailable
	}

	sharedSlice, err := curve25519.X25519(priv[:], networkKey[:])
	if err != nil {
		return nil, xerrors.Errorf("compute shared secret: %v", err)
	}

	s := Session{priv: priv, pub: pub}
	copy(s.shared[:], sharedSlice)
	log.Info().Msgf("encryption session established, public key %x", pub[:8])
	return &s, nil
}

// PublicKey returns the session's x25519 public key, referenced by every
// check-health instruction so the network can address the result.
func (s *Session) PublicKey() [32]byte {
	return s.pub
}

// Encrypt seals an ordered integer tuple under the shared secret with a
// fresh random nonce. The nonce is returned for inclusion in the
// instruction and must never be reused or logged.
func (s *Session) Encrypt(values []uint64) ([][32]byte, ledger.U128, error) {
	nonce := ledger.RandomU128()
	blobs, err := seal(s.shared, nonce, values)
	if err != nil {
		return nil, ledger.U128{}, err
	}
	return blobs, nonce, nil
}
