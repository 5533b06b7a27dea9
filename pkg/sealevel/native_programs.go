package sealevel

import (
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

type ProgramFn func(execCtx *ExecutionCtx) error

type Builtin struct {
	ProgramId solana.PublicKey
	Name      string
	Fn        ProgramFn
}

// Programs is the set of builtin programs a runtime can dispatch to. Builtins
// are looked up by the key of a NativeLoader-owned program account.
type Programs struct {
	builtins map[solana.PublicKey]Builtin
}

// NewPrograms returns a registry holding the system and compute budget programs.
func NewPrograms() *Programs {
	programs := &Programs{builtins: make(map[solana.PublicKey]Builtin)}
	programs.Register(SystemProgramAddr, "system_program", SystemProgramExecute)
	programs.Register(ComputeBudgetProgramAddr, "compute_budget_program", ComputeBudgetExecute)
	return programs
}

func (programs *Programs) Register(programId solana.PublicKey, name string, fn ProgramFn) {
	if _, exists := programs.builtins[programId]; exists {
		klog.Warningf("replacing builtin program %s (%s)", programId, name)
	}
	programs.builtins[programId] = Builtin{ProgramId: programId, Name: name, Fn: fn}
}

func (programs *Programs) Resolve(programId solana.PublicKey) (ProgramFn, error) {
	builtin, exists := programs.builtins[programId]
	if !exists {
		return nil, InstrErrUnsupportedProgramId
	}
	return builtin.Fn, nil
}

// Builtins returns the registered builtins ordered by program id.
func (programs *Programs) Builtins() []Builtin {
	builtins := lo.Values(programs.builtins)
	sort.Slice(builtins, func(i, j int) bool {
		return builtins[i].ProgramId.String() < builtins[j].ProgramId.String()
	})
	return builtins
}
