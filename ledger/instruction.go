package ledger

import (
	"encoding/binary"
)

// Method discriminators of the sentinel program, sha256("global:<name>")[:8].
var (
	ixRegisterPosition   = [8]byte{201, 164, 200, 117, 178, 197, 198, 92}
	ixCheckHealth        = [8]byte{71, 59, 207, 58, 136, 156, 153, 7}
	ixRevealRisk         = [8]byte{250, 88, 216, 251, 147, 110, 49, 235}
	ixInitRiskStateDef   = [8]byte{189, 10, 188, 172, 135, 81, 96, 11}
	ixInitCheckHealthDef = [8]byte{113, 160, 69, 107, 140, 171, 7, 218}
	ixInitRevealRiskDef  = [8]byte{229, 34, 154, 171, 30, 18, 117, 168}
)

var initCompDefDiscStore = map[string][8]byte{
	CircuitInitRiskState: ixInitRiskStateDef,
	CircuitCheckHealth:   ixInitCheckHealthDef,
	CircuitRevealRisk:    ixInitRevealRiskDef,
}

// AccountMeta references one account an instruction touches.
type AccountMeta struct {
	Pubkey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction bundles instructions under one fee payer.
type Transaction struct {
	Payer        PublicKey
	Instructions []Instruction
}

// queueMetas lists the MXE account set in the order the program declares it.
func queueMetas(payer PublicKey, accs ComputationAccounts, compDef PublicKey) []AccountMeta {
	return []AccountMeta{
		{Pubkey: payer, IsSigner: true, IsWritable: true},
		{Pubkey: accs.SignPDA, IsWritable: true},
		{Pubkey: accs.MXE},
		{Pubkey: accs.Mempool, IsWritable: true},
		{Pubkey: accs.ExecutingPool, IsWritable: true},
		{Pubkey: accs.Computation, IsWritable: true},
		{Pubkey: compDef},
		{Pubkey: accs.Cluster, IsWritable: true},
		{Pubkey: accs.FeePool, IsWritable: true},
		{Pubkey: accs.Clock},
		{Pubkey: SystemProgramID},
		{Pubkey: MXEProgramID},
	}
}

// NewRegisterPositionInstruction builds the instruction that creates a
// position account and queues the init_risk_state computation.
func NewRegisterPositionInstruction(payer PublicKey, computationOffset uint64,
	positionID uint32, nonce U128, accs ComputationAccounts,
	compDef, position PublicKey) Instruction {

	data := make([]byte, 0, 8+8+4+16)
	data = append(data, ixRegisterPosition[:]...)
	data = binary.LittleEndian.AppendUint64(data, computationOffset)
	data = binary.LittleEndian.AppendUint32(data, positionID)
	nonceBytes := nonce.Bytes()
	data = append(data, nonceBytes[:]...)

	metas := queueMetas(payer, accs, compDef)
	metas = append(metas, AccountMeta{Pubkey: position, IsWritable: true})

	return Instruction{ProgramID: SentinelProgramID, Accounts: metas, Data: data}
}

// NewCheckHealthInstruction builds the instruction that submits an encrypted
// position snapshot for a privacy-preserving health check. The ciphertext
// triple carries value, collateral ratio and liquidation threshold.
func NewCheckHealthInstruction(payer PublicKey, computationOffset uint64,
	positionID uint32, ciphertext [3][32]byte, encryptionKey [32]byte,
	nonce U128, accs ComputationAccounts, compDef, owner, position PublicKey) Instruction {

	data := make([]byte, 0, 8+8+4+96+32+16)
	data = append(data, ixCheckHealth[:]...)
	data = binary.LittleEndian.AppendUint64(data, computationOffset)
	data = binary.LittleEndian.AppendUint32(data, positionID)
	for _, blob := range ciphertext {
		data = append(data, blob[:]...)
	}
	data = append(data, encryptionKey[:]...)
	nonceBytes := nonce.Bytes()
	data = append(data, nonceBytes[:]...)

	metas := queueMetas(payer, accs, compDef)
	metas = append(metas,
		AccountMeta{Pubkey: owner},
		AccountMeta{Pubkey: position},
	)

	return Instruction{ProgramID: SentinelProgramID, Accounts: metas, Data: data}
}

// NewRevealRiskInstruction builds the instruction that asks the network to
// reveal only the boolean risk verdict of a position.
func NewRevealRiskInstruction(payer PublicKey, computationOffset uint64,
	positionID uint32, accs ComputationAccounts, compDef, position PublicKey) Instruction {

	data := make([]byte, 0, 8+8+4)
	data = append(data, ixRevealRisk[:]...)
	data = binary.LittleEndian.AppendUint64(data, computationOffset)
	data = binary.LittleEndian.AppendUint32(data, positionID)

	metas := queueMetas(payer, accs, compDef)
	metas = append(metas, AccountMeta{Pubkey: position})

	return Instruction{ProgramID: SentinelProgramID, Accounts: metas, Data: data}
}

// InstructionKind classifies sentinel-program instruction data.
type InstructionKind int

const (
	KindUnknown InstructionKind = iota
	KindRegisterPosition
	KindCheckHealth
	KindRevealRisk
	KindInitCompDef
)

// ClassifyInstruction maps instruction data to its kind by method
// discriminator.
func ClassifyInstruction(data []byte) InstructionKind {
	if len(data) < 8 {
		return KindUnknown
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	switch disc {
	case ixRegisterPosition:
		return KindRegisterPosition
	case ixCheckHealth:
		return KindCheckHealth
	case ixRevealRisk:
		return KindRevealRisk
	case ixInitRiskStateDef, ixInitCheckHealthDef, ixInitRevealRiskDef:
		return KindInitCompDef
	}
	return KindUnknown
}

// RegisterPositionArgs are the decoded arguments of a register instruction.
type RegisterPositionArgs struct {
	ComputationOffset uint64
	PositionID        uint32
	Nonce             U128
}

// DecodeRegisterPositionArgs parses register_position instruction data.
func DecodeRegisterPositionArgs(data []byte) (RegisterPositionArgs, bool) {
	var args RegisterPositionArgs
	if len(data) < 8+8+4+16 {
		return args, false
	}
	args.ComputationOffset = binary.LittleEndian.Uint64(data[8:16])
	args.PositionID = binary.LittleEndian.Uint32(data[16:20])
	args.Nonce.Lo = binary.LittleEndian.Uint64(data[20:28])
	args.Nonce.Hi = binary.LittleEndian.Uint64(data[28:36])
	return args, true
}

// CheckHealthArgs are the decoded arguments of a check_health instruction.
type CheckHealthArgs struct {
	ComputationOffset uint64
	PositionID        uint32
	Ciphertext        [3][32]byte
	EncryptionKey     [32]byte
	Nonce             U128
}

// DecodeCheckHealthArgs parses check_health instruction data.
func DecodeCheckHealthArgs(data []byte) (CheckHealthArgs, bool) {
	var args CheckHealthArgs
	if len(data) < 8+8+4+96+32+16 {
		return args, false
	}
	args.ComputationOffset = binary.LittleEndian.Uint64(data[8:16])
	args.PositionID = binary.LittleEndian.Uint32(data[16:20])
	off := 20
	for i := range args.Ciphertext {
		copy(args.Ciphertext[i][:], data[off:off+32])
		off += 32
	}
	copy(args.EncryptionKey[:], data[off:off+32])
	off += 32
	args.Nonce.Lo = binary.LittleEndian.Uint64(data[off : off+8])
	args.Nonce.Hi = binary.LittleEndian.Uint64(data[off+8 : off+16])
	return args, true
}

// RevealRiskArgs are the decoded arguments of a reveal_risk instruction.
type RevealRiskArgs struct {
	ComputationOffset uint64
	PositionID        uint32
}

// DecodeRevealRiskArgs parses reveal_risk instruction data.
func DecodeRevealRiskArgs(data []byte) (RevealRiskArgs, bool) {
	var args RevealRiskArgs
	if len(data) < 8+8+4 {
		return args, false
	}
	args.ComputationOffset = binary.LittleEndian.Uint64(data[8:16])
	args.PositionID = binary.LittleEndian.Uint32(data[16:20])
	return args, true
}

// NewInitCompDefInstruction builds the one-time initialization instruction
// for a circuit's computation definition.
func NewInitCompDefInstruction(payer PublicKey, circuit string, accs ComputationAccounts,
	compDef PublicKey) Instruction {

	disc := initCompDefDiscStore[circuit]
	data := make([]byte, 0, 8)
	data = append(data, disc[:]...)

	metas := []AccountMeta{
		{Pubkey: payer, IsSigner: true, IsWritable: true},
		{Pubkey: accs.MXE, IsWritable: true},
		{Pubkey: compDef, IsWritable: true},
		{Pubkey: SystemProgramID},
		{Pubkey: MXEProgramID},
	}

	return Instruction{ProgramID: SentinelProgramID, Accounts: metas, Data: data}
}
