package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_PDA_Deterministic(t *testing.T) {
	seeds := [][]byte{[]byte(SeedPosition), make([]byte, 32), {1, 0, 0, 0}}

	addr1, bump1, err := DeriveAddress(seeds, SentinelProgramID)
	require.NoError(t, err)
	addr2, bump2, err := DeriveAddress(seeds, SentinelProgramID)
	require.NoError(t, err)

	require.Equal(t, addr1, addr2)
	require.Equal(t, bump1, bump2)
	require.False(t, addr1.IsZero())
}

func Test_PDA_SeedSensitivity(t *testing.T) {
	base, _, err := DeriveAddress([][]byte{[]byte("a"), []byte("b")}, SentinelProgramID)
	require.NoError(t, err)

	// different seed content
	other, _, err := DeriveAddress([][]byte{[]byte("a"), []byte("c")}, SentinelProgramID)
	require.NoError(t, err)
	require.NotEqual(t, base, other)

	// same bytes, different owner program
	foreign, _, err := DeriveAddress([][]byte{[]byte("a"), []byte("b")}, MXEProgramID)
	require.NoError(t, err)
	require.NotEqual(t, base, foreign)
}

func Test_PDA_PositionAddress(t *testing.T) {
	var owner PublicKey
	for i := range owner {
		owner[i] = byte(i)
	}

	addr1, bump1, err := PositionAddress(owner, 7)
	require.NoError(t, err)
	addr2, bump2, err := PositionAddress(owner, 7)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Equal(t, bump1, bump2)

	other, _, err := PositionAddress(owner, 8)
	require.NoError(t, err)
	require.NotEqual(t, addr1, other)
}

func Test_PDA_CompDefOffsets(t *testing.T) {
	// sha256 prefixes of the circuit names, agreed with the program
	require.Equal(t, uint32(571847615), CompDefOffset(CircuitInitRiskState))
	require.Equal(t, uint32(3609171309), CompDefOffset(CircuitCheckHealth))
	require.Equal(t, uint32(3333028332), CompDefOffset(CircuitRevealRisk))
}

func Test_PDA_ComputationAccounts(t *testing.T) {
	accs1, err := DeriveComputationAccounts(99, 0)
	require.NoError(t, err)
	accs2, err := DeriveComputationAccounts(99, 0)
	require.NoError(t, err)
	require.Equal(t, accs1, accs2)

	// the computation account tracks the offset, the pools track the cluster
	other, err := DeriveComputationAccounts(100, 0)
	require.NoError(t, err)
	require.NotEqual(t, accs1.Computation, other.Computation)
	require.Equal(t, accs1.Mempool, other.Mempool)

	otherCluster, err := DeriveComputationAccounts(99, 1)
	require.NoError(t, err)
	require.NotEqual(t, accs1.Mempool, otherCluster.Mempool)
	require.NotEqual(t, accs1.Cluster, otherCluster.Cluster)
}
