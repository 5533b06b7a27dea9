package poc

import (
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
)

type Instruction uint8

const (
	InstrLogAccounts Instruction = 0
)

func (instr Instruction) String() string {
	switch instr {
	case InstrLogAccounts:
		return "LogAccounts"
	default:
		return "Unknown"
	}
}

// DecodeInstruction reads the opcode in the first byte of data. Trailing
// bytes are ignored.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return 0, sealevel.InstrErrInvalidArgument
	}

	switch instr := Instruction(data[0]); instr {
	case InstrLogAccounts:
		return instr, nil
	default:
		return 0, sealevel.InstrErrInvalidArgument
	}
}

// Data encodes the instruction for a transaction.
func (instr Instruction) Data() []byte {
	return []byte{byte(instr)}
}
