package sealevel

import (
	"github.com/Overclock-Validator/pocbank/pkg/safemath"
	bin "github.com/gagliardetto/binary"
)

const (
	MinHeapFrameBytes                  = (32 * 1024)
	MaxHeapFrameBytes                  = (256 * 1024)
	HeapFrameBytesMultiple             = 1024
	DefaultInstructionComputeUnitLimit = 200000
	MaxComputeUnitLimit                = 1400000
	MaxLoadedAccountsDataSizeBytes     = (64 * 1024 * 1024)
)

type ComputeBudgetLimits struct {
	UpdatedHeapBytes   uint32
	ComputeUnitLimit   uint32
	ComputeUnitPrice   uint64
	LoadedAccountBytes uint32
}

// DefaultComputeBudgetLimits is what a transaction with numInstrs
// non-compute-budget instructions gets when it requests nothing.
func DefaultComputeBudgetLimits(numInstrs uint32) *ComputeBudgetLimits {
	return &ComputeBudgetLimits{
		UpdatedHeapBytes:   MinHeapFrameBytes,
		ComputeUnitLimit:   min(safemath.SaturatingMulU32(numInstrs, DefaultInstructionComputeUnitLimit), MaxComputeUnitLimit),
		LoadedAccountBytes: MaxLoadedAccountsDataSizeBytes,
	}
}

const (
	ComputeBudgetInstrTypeRequestHeapFrame               = 1
	ComputeBudgetInstrTypeSetComputeUnitLimit            = 2
	ComputeBudgetInstrTypeSetComputeUnitPrice            = 3
	ComputeBudgetInstrTypeSetLoadedAccountsDataSizeLimit = 4
)

type ComputeBudgetInstrRequestHeapFrame struct {
	Bytes uint32
}

type ComputeBudgetInstrSetComputeUnitLimit struct {
	ComputeUnitLimit uint32
}

type ComputeBudgetInstrSetComputeUnitPrice struct {
	MicroLamports uint64
}

type ComputeBudgetInstrSetLoadedAccountsDataSizeLimit struct {
	Bytes uint32
}

func (requestHeapFrame *ComputeBudgetInstrRequestHeapFrame) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	requestHeapFrame.Bytes, err = decoder.ReadUint32(bin.LE)
	return err
}

func (requestHeapFrame *ComputeBudgetInstrRequestHeapFrame) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(ComputeBudgetInstrTypeRequestHeapFrame)
	if err != nil {
		return err
	}
	return encoder.WriteUint32(requestHeapFrame.Bytes, bin.LE)
}

func (setComputeUnitLimit *ComputeBudgetInstrSetComputeUnitLimit) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	setComputeUnitLimit.ComputeUnitLimit, err = decoder.ReadUint32(bin.LE)
	return err
}

func (setComputeUnitLimit *ComputeBudgetInstrSetComputeUnitLimit) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(ComputeBudgetInstrTypeSetComputeUnitLimit)
	if err != nil {
		return err
	}
	return encoder.WriteUint32(setComputeUnitLimit.ComputeUnitLimit, bin.LE)
}

func (setComputeUnitPrice *ComputeBudgetInstrSetComputeUnitPrice) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	setComputeUnitPrice.MicroLamports, err = decoder.ReadUint64(bin.LE)
	return err
}

func (setComputeUnitPrice *ComputeBudgetInstrSetComputeUnitPrice) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(ComputeBudgetInstrTypeSetComputeUnitPrice)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(setComputeUnitPrice.MicroLamports, bin.LE)
}

func (setLoadedAccountsDataSizeLimit *ComputeBudgetInstrSetLoadedAccountsDataSizeLimit) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	setLoadedAccountsDataSizeLimit.Bytes, err = decoder.ReadUint32(bin.LE)
	return err
}

func (setLoadedAccountsDataSizeLimit *ComputeBudgetInstrSetLoadedAccountsDataSizeLimit) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(ComputeBudgetInstrTypeSetLoadedAccountsDataSizeLimit)
	if err != nil {
		return err
	}
	return encoder.WriteUint32(setLoadedAccountsDataSizeLimit.Bytes, bin.LE)
}

func sanitizeRequestedHeapSize(len uint32) bool {
	return len >= MinHeapFrameBytes && len <= MaxHeapFrameBytes && (len%HeapFrameBytesMultiple == 0)
}

// setOnce records a compute budget request. Each kind may be requested once.
func setOnce[T any](dst **T, val T) error {
	if *dst != nil {
		return ErrDuplicateComputeBudgetInstruction
	}
	*dst = &val
	return nil
}

// ComputeBudgetExecuteInstructions derives the transaction's compute budget
// from its compute budget instructions.
func ComputeBudgetExecuteInstructions(instructions []Instruction) (*ComputeBudgetLimits, error) {
	var (
		heapBytes   *uint32
		unitLimit   *uint32
		unitPrice   *uint64
		loadedBytes *uint32
		numOther    uint32
	)

	for _, instr := range instructions {
		if instr.ProgramId != ComputeBudgetProgramAddr {
			numOther++
			continue
		}

		decoder := bin.NewBorshDecoder(instr.Data)
		instrType, err := decoder.ReadUint8()
		if err != nil {
			return nil, InstrErrInvalidInstructionData
		}

		switch instrType {
		case ComputeBudgetInstrTypeRequestHeapFrame:
			var req ComputeBudgetInstrRequestHeapFrame
			if req.UnmarshalWithDecoder(decoder) != nil {
				return nil, InstrErrInvalidInstructionData
			}
			err = setOnce(&heapBytes, req.Bytes)
			if err != nil {
				return nil, err
			}
			if !sanitizeRequestedHeapSize(req.Bytes) {
				return nil, InstrErrInvalidInstructionData
			}

		case ComputeBudgetInstrTypeSetComputeUnitLimit:
			var req ComputeBudgetInstrSetComputeUnitLimit
			if req.UnmarshalWithDecoder(decoder) != nil {
				return nil, InstrErrInvalidInstructionData
			}
			err = setOnce(&unitLimit, req.ComputeUnitLimit)

		case ComputeBudgetInstrTypeSetComputeUnitPrice:
			var req ComputeBudgetInstrSetComputeUnitPrice
			if req.UnmarshalWithDecoder(decoder) != nil {
				return nil, InstrErrInvalidInstructionData
			}
			err = setOnce(&unitPrice, req.MicroLamports)

		case ComputeBudgetInstrTypeSetLoadedAccountsDataSizeLimit:
			var req ComputeBudgetInstrSetLoadedAccountsDataSizeLimit
			if req.UnmarshalWithDecoder(decoder) != nil {
				return nil, InstrErrInvalidInstructionData
			}
			err = setOnce(&loadedBytes, req.Bytes)

		default:
			return nil, InstrErrInvalidInstructionData
		}
		if err != nil {
			return nil, err
		}
	}

	limits := DefaultComputeBudgetLimits(numOther)
	if heapBytes != nil {
		limits.UpdatedHeapBytes = *heapBytes
	}
	if unitLimit != nil {
		limits.ComputeUnitLimit = min(*unitLimit, MaxComputeUnitLimit)
	}
	if unitPrice != nil {
		limits.ComputeUnitPrice = *unitPrice
	}
	if loadedBytes != nil {
		limits.LoadedAccountBytes = min(*loadedBytes, MaxLoadedAccountsDataSizeBytes)
	}
	return limits, nil
}

func ComputeBudgetExecute(execCtx *ExecutionCtx) error {
	err := execCtx.ComputeMeter.Consume(CUComputeBudgetProgramDefaultComputeUnits)
	if err != nil {
		return InstrErrComputationalBudgetExceeded
	}
	return nil
}
