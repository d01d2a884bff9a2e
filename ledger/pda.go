package ledger

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"
	"golang.org/x/xerrors"
)

// pdaMarker terminates the seed material of every derived address so that a
// derived address can never collide with a hash of plain account data.
const pdaMarker = "ProgramDerivedAddress"

// Seed labels used by the sentinel and MXE programs.
const (
	SeedPosition      = "position"
	SeedSign          = "ARCIUM_SIGN"
	SeedMXE           = "MXEAccount"
	SeedMempool       = "Mempool"
	SeedExecutingPool = "ExecutingPool"
	SeedCluster       = "Cluster"
	SeedComputation   = "Computation"
	SeedCompDef       = "ComputationDefinitionAccount"
	SeedFeePool       = "FeePool"
	SeedClock         = "ClockAccount"
)

// Circuit names agreed with the MPC network. The computation-definition
// offset of a circuit is the little-endian u32 of the first four bytes of
// sha256 over its name.
const (
	CircuitInitRiskState = "init_risk_state"
	CircuitCheckHealth   = "check_position_health"
	CircuitRevealRisk    = "reveal_risk"
)

// CompDefOffset maps a circuit name to its computation-definition offset.
func CompDefOffset(circuit string) uint32 {
	sum := sha256.Sum256([]byte(circuit))
	return binary.LittleEndian.Uint32(sum[:4])
}

// DeriveAddress finds the program-derived address for the given seed
// sequence. It walks bump candidates from 255 downward and returns the first
// candidate that is not a valid curve point, together with the bump that
// produced it. Identical seeds always yield the identical pair.
func DeriveAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program[:])
		h.Write([]byte(pdaMarker))

		var candidate PublicKey
		copy(candidate[:], h.Sum(nil))

		// A candidate that decodes as a curve point would have a private
		// key somewhere; only off-curve addresses are program-owned.
		if _, err := new(edwards25519.Point).SetBytes(candidate[:]); err != nil {
			return candidate, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, xerrors.Errorf("bump seed space exhausted")
}

// PositionAddress derives the per-entity position record address.
func PositionAddress(owner PublicKey, positionID uint32) (PublicKey, uint8, error) {
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], positionID)
	return DeriveAddress([][]byte{
		[]byte(SeedPosition),
		owner[:],
		id[:],
	}, SentinelProgramID)
}

// CompDefAddress derives the computation-definition address of a circuit.
func CompDefAddress(circuit string) (PublicKey, uint8, error) {
	var off [4]byte
	binary.LittleEndian.PutUint32(off[:], CompDefOffset(circuit))
	return DeriveAddress([][]byte{
		[]byte(SeedCompDef),
		SentinelProgramID[:],
		off[:],
	}, MXEProgramID)
}

// ComputationAccounts bundles the MXE-side addresses a queued computation
// references. All of them derive deterministically from the computation
// offset and the cluster offset, so callers may memoize.
type ComputationAccounts struct {
	SignPDA       PublicKey
	MXE           PublicKey
	Mempool       PublicKey
	ExecutingPool PublicKey
	Computation   PublicKey
	Cluster       PublicKey
	FeePool       PublicKey
	Clock         PublicKey
}

// DeriveComputationAccounts resolves the full MXE account set for one queued
// computation.
func DeriveComputationAccounts(computationOffset uint64, clusterOffset uint32) (ComputationAccounts, error) {
	var accs ComputationAccounts

	var compOff [8]byte
	binary.LittleEndian.PutUint64(compOff[:], computationOffset)
	var clustOff [4]byte
	binary.LittleEndian.PutUint32(clustOff[:], clusterOffset)

	derivations := []struct {
		target *PublicKey
		seeds  [][]byte
		owner  PublicKey
	}{
		{&accs.SignPDA, [][]byte{[]byte(SeedSign)}, SentinelProgramID},
		{&accs.MXE, [][]byte{[]byte(SeedMXE), SentinelProgramID[:]}, MXEProgramID},
		{&accs.Mempool, [][]byte{[]byte(SeedMempool), clustOff[:]}, MXEProgramID},
		{&accs.ExecutingPool, [][]byte{[]byte(SeedExecutingPool), clustOff[:]}, MXEProgramID},
		{&accs.Computation, [][]byte{[]byte(SeedComputation), compOff[:]}, MXEProgramID},
		{&accs.Cluster, [][]byte{[]byte(SeedCluster), clustOff[:]}, MXEProgramID},
		{&accs.FeePool, [][]byte{[]byte(SeedFeePool)}, MXEProgramID},
		{&accs.Clock, [][]byte{[]byte(SeedClock)}, MXEProgramID},
	}
	for _, d := range derivations {
		addr, _, err := DeriveAddress(d.seeds, d.owner)
		if err != nil {
			return accs, err
		}
		*d.target = addr
	}
	return accs, nil
}

// MXEAccountAddress derives the address holding the network's published
// encryption key.
func MXEAccountAddress() (PublicKey, error) {
	addr, _, err := DeriveAddress([][]byte{[]byte(SeedMXE), SentinelProgramID[:]}, MXEProgramID)
	return addr, err
}
