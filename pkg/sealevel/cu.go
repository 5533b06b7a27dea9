package sealevel

const (
	CUBuiltinProgramDefaultComputeUnits       = 150
	CUComputeBudgetProgramDefaultComputeUnits = 150
	CUSystemProgramDefaultComputeUnits        = 150
	CULogUnits                                = 100
	CULogPubkeyUnits                          = 100
)
