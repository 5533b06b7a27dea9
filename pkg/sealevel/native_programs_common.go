package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

const NativeLoaderAddrStr = "NativeLoader1111111111111111111111111111111"

var NativeLoaderAddr = solana.MustPublicKeyFromBase58(NativeLoaderAddrStr)

const SystemProgramAddrStr = "11111111111111111111111111111111"

var SystemProgramAddr = solana.MustPublicKeyFromBase58(SystemProgramAddrStr)

const ComputeBudgetProgramAddrStr = "ComputeBudget111111111111111111111111111111"

var ComputeBudgetProgramAddr = solana.MustPublicKeyFromBase58(ComputeBudgetProgramAddrStr)

const Secp256kPrecompileAddrStr = "KeccakSecp256k11111111111111111111111111111"

var Secp256kPrecompileAddr = solana.MustPublicKeyFromBase58(Secp256kPrecompileAddrStr)

const Ed25519PrecompileAddrStr = "Ed25519SigVerify111111111111111111111111111"

var Ed25519PrecompileAddr = solana.MustPublicKeyFromBase58(Ed25519PrecompileAddrStr)

const SysvarOwnerAddrStr = "Sysvar1111111111111111111111111111111111111"

var SysvarOwnerAddr = solana.MustPublicKeyFromBase58(SysvarOwnerAddrStr)

// IsPrecompile reports whether programId names a signature verification
// precompile. Precompile signatures count towards the transaction fee.
func IsPrecompile(programId solana.PublicKey) bool {
	return programId == Secp256kPrecompileAddr || programId == Ed25519PrecompileAddr
}
