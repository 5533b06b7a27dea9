package poc

import (
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	"github.com/gagliardetto/solana-go"
)

const ProgramName = "poc"

// ProcessInstruction is the program entrypoint.
func ProcessInstruction(log sealevel.Logger, programId solana.PublicKey, accts []sealevel.AccountInfo, data []byte) error {
	sealevel.Msgf(log, "program_id %s", programId)

	instr, err := DecodeInstruction(data)
	if err != nil {
		return err
	}

	switch instr {
	case InstrLogAccounts:
		return logAccounts(log, accts)
	default:
		return sealevel.InstrErrInvalidArgument
	}
}

// logAccounts logs the first two accounts. It never modifies them.
func logAccounts(log sealevel.Logger, accts []sealevel.AccountInfo) error {
	sealevel.Msgf(log, "This is an example program function")

	infos, err := sealevel.NextAccountInfos(accts, 2)
	if err != nil {
		return err
	}
	ownerAcct, acctId := infos[0], infos[1]

	sealevel.Msgf(log, "owner account %s", ownerAcct)
	sealevel.Msgf(log, "account id %s", acctId)
	return nil
}

// Program returns the entrypoint as a builtin.
func Program() sealevel.ProgramFn {
	return sealevel.Processor(ProcessInstruction)
}
