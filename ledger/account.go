package ledger

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
)

// PositionRecordSize is the fixed serialized size of a position account:
// 8 discriminator + 1 bump + 64 risk state + 4 id + 32 owner + 16 nonce +
// 8 timestamp + 1 active flag.
const PositionRecordSize = 134

// positionDiscriminator tags position accounts owned by the sentinel
// program. Any account whose data does not start with it is foreign.
var positionDiscriminator = [8]byte{60, 125, 250, 193, 181, 109, 238, 86}

// U128 is a 128-bit unsigned integer stored as two little-endian u64 halves.
type U128 struct {
	Lo uint64
	Hi uint64
}

// RandomU128 draws a fresh random 128-bit value.
func RandomU128() U128 {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(err)
	}
	return U128{
		Lo: binary.LittleEndian.Uint64(raw[:8]),
		Hi: binary.LittleEndian.Uint64(raw[8:]),
	}
}

// Bytes returns the 16-byte little-endian encoding.
func (u U128) Bytes() [16]byte {
	var raw [16]byte
	binary.LittleEndian.PutUint64(raw[:8], u.Lo)
	binary.LittleEndian.PutUint64(raw[8:], u.Hi)
	return raw
}

// PositionRecord is the decoded state of one monitored position. RiskState
// holds two opaque ciphertext blobs maintained by the MPC network; the agent
// never interprets their contents.
type PositionRecord struct {
	Bump       uint8
	RiskState  [2][32]byte
	PositionID uint32
	Owner      PublicKey
	Nonce      U128
	LastCheck  int64
	IsActive   bool
}

// DecodePositionRecord parses a raw account buffer. It reports false for
// truncated buffers and for foreign discriminators instead of failing.
func DecodePositionRecord(data []byte) (PositionRecord, bool) {
	var rec PositionRecord
	if len(data) < PositionRecordSize {
		return rec, false
	}
	if !bytes.Equal(data[:8], positionDiscriminator[:]) {
		return rec, false
	}

	rec.Bump = data[8]
	copy(rec.RiskState[0][:], data[9:41])
	copy(rec.RiskState[1][:], data[41:73])
	rec.PositionID = binary.LittleEndian.Uint32(data[73:77])
	copy(rec.Owner[:], data[77:109])
	rec.Nonce.Lo = binary.LittleEndian.Uint64(data[109:117])
	rec.Nonce.Hi = binary.LittleEndian.Uint64(data[117:125])
	rec.LastCheck = int64(binary.LittleEndian.Uint64(data[125:133]))
	rec.IsActive = data[133] != 0

	return rec, true
}

// Encode serializes the record back to its 134-byte account form. Decode
// followed by Encode reproduces the input buffer exactly.
func (rec PositionRecord) Encode() []byte {
	data := make([]byte, PositionRecordSize)
	copy(data[:8], positionDiscriminator[:])
	data[8] = rec.Bump
	copy(data[9:41], rec.RiskState[0][:])
	copy(data[41:73], rec.RiskState[1][:])
	binary.LittleEndian.PutUint32(data[73:77], rec.PositionID)
	copy(data[77:109], rec.Owner[:])
	binary.LittleEndian.PutUint64(data[109:117], rec.Nonce.Lo)
	binary.LittleEndian.PutUint64(data[117:125], rec.Nonce.Hi)
	binary.LittleEndian.PutUint64(data[125:133], uint64(rec.LastCheck))
	if rec.IsActive {
		data[133] = 1
	}
	return data
}

// mxeAccountSize is the minimal MXE account layout the agent reads:
// 8 discriminator + 1 bump + 32-byte published x25519 key.
const mxeAccountSize = 41

// DecodeMXEKey extracts the network's published encryption key from an MXE
// account buffer.
func DecodeMXEKey(data []byte) ([32]byte, bool) {
	var key [32]byte
	if len(data) < mxeAccountSize {
		return key, false
	}
	copy(key[:], data[9:41])
	if key == [32]byte{} {
		return key, false
	}
	return key, true
}

// EncodeMXEAccount builds an MXE account buffer holding the given published
// key. Used by the simulated ledger and by tests.
func EncodeMXEAccount(key [32]byte) []byte {
	data := make([]byte, mxeAccountSize)
	copy(data[9:41], key[:])
	return data
}
