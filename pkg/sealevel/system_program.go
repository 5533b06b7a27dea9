package sealevel

import (
	"errors"
	"slices"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

const (
	SystemProgMaxPermittedDataLen = MaxPermittedDataLength

	// maxInstructionDataLen is the packet size limit past which
	// instruction data can never be valid.
	maxInstructionDataLen = 1232
)

const (
	SystemProgramInstrTypeCreateAccount = iota
	SystemProgramInstrTypeAssign
	SystemProgramInstrTypeTransfer
	SystemProgramInstrTypeCreateAccountWithSeed
	SystemProgramInstrTypeAdvanceNonceAccount
	SystemProgramInstrTypeWithdrawNonceAccount
	SystemProgramInstrTypeInitializeNonceAccount
	SystemProgramInstrTypeAuthorizeNonceAccount
	SystemProgramInstrTypeAllocate
	SystemProgramInstrTypeAllocateWithSeed
	SystemProgramInstrTypeAssignWithSeed
	SystemProgramInstrTypeTransferWithSeed
	SystemProgramInstrTypeUpgradeNonceAccount
)

var (
	SystemProgErrAccountAlreadyInUse        = errors.New("SystemProgErrAccountAlreadyInUse")
	SystemProgErrInvalidAccountDataLength   = errors.New("SystemProgErrInvalidAccountDataLength")
	SystemProgErrResultWithNegativeLamports = errors.New("SystemProgErrResultWithNegativeLamports")
	SystemProgErrAddressWithSeedMismatch    = errors.New("SystemProgErrAddressWithSeedMismatch")
)

type SystemInstrCreateAccount struct {
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrAssign struct {
	Owner solana.PublicKey
}

type SystemInstrTransfer struct {
	Lamports uint64
}

type SystemInstrCreateAccountWithSeed struct {
	Base     solana.PublicKey
	Seed     string
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrAllocate struct {
	Space uint64
}

type SystemInstrAllocateWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Space uint64
	Owner solana.PublicKey
}

type SystemInstrAssignWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Owner solana.PublicKey
}

type SystemInstrTransferWithSeed struct {
	Lamports  uint64
	FromSeed  string
	FromOwner solana.PublicKey
}

// systemInstruction is encoded as its u32 tag followed by its fields, in
// order, as bincode.
type systemInstruction interface {
	tag() uint32
	fields() []any
}

func (instr *SystemInstrCreateAccount) tag() uint32 { return SystemProgramInstrTypeCreateAccount }
func (instr *SystemInstrCreateAccount) fields() []any {
	return []any{&instr.Lamports, &instr.Space, &instr.Owner}
}

func (instr *SystemInstrAssign) tag() uint32   { return SystemProgramInstrTypeAssign }
func (instr *SystemInstrAssign) fields() []any { return []any{&instr.Owner} }

func (instr *SystemInstrTransfer) tag() uint32   { return SystemProgramInstrTypeTransfer }
func (instr *SystemInstrTransfer) fields() []any { return []any{&instr.Lamports} }

func (instr *SystemInstrCreateAccountWithSeed) tag() uint32 {
	return SystemProgramInstrTypeCreateAccountWithSeed
}
func (instr *SystemInstrCreateAccountWithSeed) fields() []any {
	return []any{&instr.Base, &instr.Seed, &instr.Lamports, &instr.Space, &instr.Owner}
}

func (instr *SystemInstrAllocate) tag() uint32   { return SystemProgramInstrTypeAllocate }
func (instr *SystemInstrAllocate) fields() []any { return []any{&instr.Space} }

func (instr *SystemInstrAllocateWithSeed) tag() uint32 { return SystemProgramInstrTypeAllocateWithSeed }
func (instr *SystemInstrAllocateWithSeed) fields() []any {
	return []any{&instr.Base, &instr.Seed, &instr.Space, &instr.Owner}
}

func (instr *SystemInstrAssignWithSeed) tag() uint32 { return SystemProgramInstrTypeAssignWithSeed }
func (instr *SystemInstrAssignWithSeed) fields() []any {
	return []any{&instr.Base, &instr.Seed, &instr.Owner}
}

func (instr *SystemInstrTransferWithSeed) tag() uint32 { return SystemProgramInstrTypeTransferWithSeed }
func (instr *SystemInstrTransferWithSeed) fields() []any {
	return []any{&instr.Lamports, &instr.FromSeed, &instr.FromOwner}
}

func (instr *SystemInstrCreateAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrAssign) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrTransfer) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrCreateAccountWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrAllocate) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrAllocateWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrAssignWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func (instr *SystemInstrTransferWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	return marshalSystemInstruction(encoder, instr)
}

func marshalSystemInstruction(encoder *bin.Encoder, instr systemInstruction) error {
	err := encoder.WriteUint32(instr.tag(), bin.LE)
	if err != nil {
		return err
	}

	for _, field := range instr.fields() {
		switch f := field.(type) {
		case *uint64:
			err = encoder.WriteUint64(*f, bin.LE)
		case *string:
			err = encoder.WriteRustString(*f)
		case *solana.PublicKey:
			err = encoder.WriteBytes(f[:], false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type systemInstructionLayout struct {
	numAccounts uint64
	new         func() systemInstruction
}

var systemInstructionLayouts = map[uint32]systemInstructionLayout{
	SystemProgramInstrTypeCreateAccount: {2, func() systemInstruction { return new(SystemInstrCreateAccount) }},
	SystemProgramInstrTypeAssign:        {1, func() systemInstruction { return new(SystemInstrAssign) }},
	SystemProgramInstrTypeTransfer:      {2, func() systemInstruction { return new(SystemInstrTransfer) }},
	SystemProgramInstrTypeCreateAccountWithSeed: {2, func() systemInstruction {
		return new(SystemInstrCreateAccountWithSeed)
	}},
	SystemProgramInstrTypeAllocate:         {1, func() systemInstruction { return new(SystemInstrAllocate) }},
	SystemProgramInstrTypeAllocateWithSeed: {1, func() systemInstruction { return new(SystemInstrAllocateWithSeed) }},
	SystemProgramInstrTypeAssignWithSeed:   {1, func() systemInstruction { return new(SystemInstrAssignWithSeed) }},
	SystemProgramInstrTypeTransferWithSeed: {3, func() systemInstruction { return new(SystemInstrTransferWithSeed) }},
}

// decodeSystemInstruction returns InstrErrInvalidInstructionData for unknown
// tags, durable nonce instructions and malformed or oversized data.
func decodeSystemInstruction(data []byte) (systemInstruction, uint64, error) {
	decoder := bin.NewBinDecoder(data)

	tag, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return nil, 0, InstrErrInvalidInstructionData
	}

	layout, ok := systemInstructionLayouts[tag]
	if !ok {
		switch tag {
		case SystemProgramInstrTypeAdvanceNonceAccount, SystemProgramInstrTypeWithdrawNonceAccount,
			SystemProgramInstrTypeInitializeNonceAccount, SystemProgramInstrTypeAuthorizeNonceAccount,
			SystemProgramInstrTypeUpgradeNonceAccount:
			klog.V(2).Infof("system program: durable nonce instruction %d not supported", tag)
		}
		return nil, 0, InstrErrInvalidInstructionData
	}

	instr := layout.new()
	for _, field := range instr.fields() {
		switch f := field.(type) {
		case *uint64:
			*f, err = decoder.ReadUint64(bin.LE)
		case *string:
			*f, err = decoder.ReadRustString()
		case *solana.PublicKey:
			var b []byte
			b, err = decoder.ReadBytes(solana.PublicKeyLength)
			copy(f[:], b)
		}
		if err != nil {
			return nil, 0, InstrErrInvalidInstructionData
		}
	}

	if decoder.Position() > maxInstructionDataLen {
		return nil, 0, InstrErrInvalidInstructionData
	}
	return instr, layout.numAccounts, nil
}

func extractAddress(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (solana.PublicKey, error) {
	idx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return txCtx.KeyOfAccountAtIndex(idx)
}

// extractAddressWithSeed returns the address of the instruction account,
// which must be derived from base, seed and owner.
func extractAddressWithSeed(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, base solana.PublicKey, seed string, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, err := extractAddress(txCtx, instrCtx, instrAcctIdx)
	if err != nil {
		return addr, err
	}

	derived, err := solana.CreateWithSeed(base, seed, owner)
	if err != nil {
		return addr, InstrErrInvalidArgument
	}
	if addr != derived {
		klog.V(2).Infof("system program: address %s does not match derived address %s", addr, derived)
		return addr, SystemProgErrAddressWithSeedMismatch
	}
	return addr, nil
}

// withFirstAccount borrows instruction account 0 for the duration of fn.
func withFirstAccount(txCtx *TransactionCtx, instrCtx *InstructionCtx, fn func(acct *BorrowedAccount) error) error {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer acct.Drop()
	return fn(acct)
}

func SystemProgramExecute(execCtx *ExecutionCtx) error {
	err := execCtx.ComputeMeter.Consume(CUSystemProgramDefaultComputeUnits)
	if err != nil {
		return InstrErrComputationalBudgetExceeded
	}

	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	instr, numAccounts, err := decodeSystemInstruction(instrCtx.Data)
	if err != nil {
		return err
	}

	signers, err := instrCtx.Signers(txCtx)
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(numAccounts)
	if err != nil {
		return err
	}

	switch instr := instr.(type) {
	case *SystemInstrCreateAccount:
		toAddr, err := extractAddress(txCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		return createAccount(execCtx, toAddr, instr.Lamports, instr.Space, instr.Owner, signers)

	case *SystemInstrCreateAccountWithSeed:
		toAddr, err := extractAddressWithSeed(txCtx, instrCtx, 1, instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		if !slices.Contains(signers, instr.Base) {
			return InstrErrMissingRequiredSignature
		}
		return createAccount(execCtx, toAddr, instr.Lamports, instr.Space, instr.Owner, append(signers, toAddr))

	case *SystemInstrAssign:
		addr, err := extractAddress(txCtx, instrCtx, 0)
		if err != nil {
			return err
		}
		return withFirstAccount(txCtx, instrCtx, func(acct *BorrowedAccount) error {
			return assign(acct, addr, instr.Owner, signers)
		})

	case *SystemInstrAssignWithSeed:
		addr, err := extractAddressWithSeed(txCtx, instrCtx, 0, instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		if !slices.Contains(signers, instr.Base) {
			return InstrErrMissingRequiredSignature
		}
		return withFirstAccount(txCtx, instrCtx, func(acct *BorrowedAccount) error {
			return assign(acct, addr, instr.Owner, append(signers, addr))
		})

	case *SystemInstrAllocate:
		addr, err := extractAddress(txCtx, instrCtx, 0)
		if err != nil {
			return err
		}
		return withFirstAccount(txCtx, instrCtx, func(acct *BorrowedAccount) error {
			return allocate(acct, addr, instr.Space, signers)
		})

	case *SystemInstrAllocateWithSeed:
		addr, err := extractAddressWithSeed(txCtx, instrCtx, 0, instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		if !slices.Contains(signers, instr.Base) {
			return InstrErrMissingRequiredSignature
		}
		return withFirstAccount(txCtx, instrCtx, func(acct *BorrowedAccount) error {
			return allocateAndAssign(acct, addr, instr.Space, instr.Owner, append(signers, addr))
		})

	case *SystemInstrTransfer:
		return transfer(execCtx, 0, 1, instr.Lamports)

	case *SystemInstrTransferWithSeed:
		return transferWithSeed(execCtx, 0, 1, instr.FromSeed, instr.FromOwner, 2, instr.Lamports)
	}

	return InstrErrInvalidInstructionData
}

// createAccount allocates and assigns instruction account 1, then funds it
// from instruction account 0. Accounts holding lamports are in use.
func createAccount(execCtx *ExecutionCtx, toAddr solana.PublicKey, lamports uint64, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	toAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}

	if toAcct.Lamports() > 0 {
		toAcct.Drop()
		klog.V(2).Infof("CreateAccount: account %s already in use (non-zero lamports)", toAddr)
		return SystemProgErrAccountAlreadyInUse
	}

	err = allocateAndAssign(toAcct, toAddr, space, owner, signers)
	toAcct.Drop()
	if err != nil {
		return err
	}

	return transfer(execCtx, 0, 1, lamports)
}

func allocateAndAssign(acct *BorrowedAccount, addr solana.PublicKey, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	err := allocate(acct, addr, space, signers)
	if err != nil {
		return err
	}
	return assign(acct, addr, owner, signers)
}

func allocate(acct *BorrowedAccount, addr solana.PublicKey, space uint64, signers []solana.PublicKey) error {
	if !slices.Contains(signers, addr) {
		klog.V(2).Infof("Allocate: account %s must sign", addr)
		return InstrErrMissingRequiredSignature
	}

	if len(acct.Account.Data) != 0 || acct.Owner() != SystemProgramAddr {
		klog.V(2).Infof("Allocate: account %s already in use", addr)
		return SystemProgErrAccountAlreadyInUse
	}

	if space > SystemProgMaxPermittedDataLen {
		klog.V(2).Infof("Allocate: requested %d, max allowed %d", space, SystemProgMaxPermittedDataLen)
		return SystemProgErrInvalidAccountDataLength
	}

	return acct.SetDataLength(space)
}

func assign(acct *BorrowedAccount, addr solana.PublicKey, owner solana.PublicKey, signers []solana.PublicKey) error {
	if acct.Owner() == owner {
		return nil
	}

	if !slices.Contains(signers, addr) {
		klog.V(2).Infof("Assign: account %s must sign", addr)
		return InstrErrMissingRequiredSignature
	}

	return acct.SetOwner(owner)
}

func transfer(execCtx *ExecutionCtx, fromIdx uint64, toIdx uint64, lamports uint64) error {
	instrCtx, err := execCtx.TransactionContext.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(fromIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		return InstrErrMissingRequiredSignature
	}

	return moveLamports(execCtx, fromIdx, toIdx, lamports)
}

// transferWithSeed moves lamports out of an account derived from the signing
// base account at baseIdx.
func transferWithSeed(execCtx *ExecutionCtx, fromIdx uint64, baseIdx uint64, fromSeed string, fromOwner solana.PublicKey, toIdx uint64, lamports uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(baseIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		klog.V(2).Infof("TransferWithSeed: base account must sign")
		return InstrErrMissingRequiredSignature
	}

	base, err := extractAddress(txCtx, instrCtx, baseIdx)
	if err != nil {
		return err
	}
	_, err = extractAddressWithSeed(txCtx, instrCtx, fromIdx, base, fromSeed, fromOwner)
	if err != nil {
		return err
	}

	return moveLamports(execCtx, fromIdx, toIdx, lamports)
}

// moveLamports debits from and credits to. The source must carry no data.
func moveLamports(execCtx *ExecutionCtx, fromIdx uint64, toIdx uint64, lamports uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	from, err := instrCtx.BorrowInstructionAccount(txCtx, fromIdx)
	if err != nil {
		return err
	}

	if len(from.Account.Data) != 0 {
		from.Drop()
		klog.V(2).Infof("Transfer: 'from' must not carry data")
		return InstrErrInvalidArgument
	}

	if lamports > from.Lamports() {
		from.Drop()
		klog.V(2).Infof("Transfer: insufficient lamports %d, need %d", from.Lamports(), lamports)
		return SystemProgErrResultWithNegativeLamports
	}

	err = from.CheckedSubLamports(lamports)
	from.Drop()
	if err != nil {
		return err
	}

	to, err := instrCtx.BorrowInstructionAccount(txCtx, toIdx)
	if err != nil {
		return err
	}
	defer to.Drop()

	return to.CheckedAddLamports(lamports)
}
