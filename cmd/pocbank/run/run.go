package run

import (
	"errors"
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/bank"
	"github.com/Overclock-Validator/pocbank/pkg/config"
	"github.com/Overclock-Validator/pocbank/pkg/poc"
	"github.com/Overclock-Validator/pocbank/pkg/rpcclient"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	Cmd = cobra.Command{
		Use:   "run",
		Short: "Invoke the poc program once and check the fee it was charged",
		Args:  cobra.NoArgs,
		RunE:  run,
	}

	configPath string
	accountsDb string
	rpcUrl     string
	clone      []string
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path of a YAML config file")
	Cmd.Flags().StringVarP(&accountsDb, "accounts-db", "a", "", "Directory of a persistent accounts db (default in-memory)")
	Cmd.Flags().StringVarP(&rpcUrl, "url", "u", "", "RPC endpoint to clone accounts from")
	Cmd.Flags().StringSliceVar(&clone, "clone", nil, "Accounts to clone from the RPC endpoint")
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if accountsDb != "" {
		cfg.AccountsDb = accountsDb
	}
	if rpcUrl != "" {
		cfg.Rpc.Url = rpcUrl
	}
	cfg.Rpc.Clone = append(cfg.Rpc.Clone, clone...)

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	genesis, err := cfg.GenesisAccounts()
	if err != nil {
		return err
	}
	clonePubkeys, err := cfg.ClonePubkeys()
	if err != nil {
		return err
	}

	scenarioCfg := poc.ScenarioConfig{
		Bank: bank.Config{
			LamportsPerSignature: cfg.LamportsPerSignature,
			FeeCollector:         cfg.FeeCollectorPubkey(),
			GenesisAccounts:      genesis,
			AccountsDbPath:       cfg.AccountsDb,
		},
		AccountLamports: cfg.Account.Lamports,
		AccountData:     cfg.AccountData(),
		Commitment:      rpc.CommitmentType(cfg.Commitment),
		Clone:           clonePubkeys,
	}
	if cfg.Rpc.Url != "" {
		scenarioCfg.Fetcher = rpcclient.NewRpcClientWithCommitment(cfg.Rpc.Url, rpc.CommitmentType(cfg.Commitment))
	}

	if cfg.AccountsDb != "" {
		klog.Infof("using accounts db at %s", cfg.AccountsDb)
	}

	res, err := poc.RunScenario(c.Context(), scenarioCfg)
	if res != nil {
		for _, l := range res.Logs {
			klog.Info(l)
		}
	}
	if err != nil {
		var instrErr *bank.InstructionError
		if errors.As(err, &instrErr) {
			klog.Errorf("instruction %d failed with error code %d", instrErr.Index, instrErr.Code())
		}
		return fmt.Errorf("scenario failed: %w", err)
	}

	fmt.Fprintf(c.OutOrStdout(), "program: %s\naccount: %s\npayer: %s\nsignature: %s\nfee: %d lamports (expected %d)\n",
		res.ProgramId, res.AccountId, res.Payer, res.Signature, res.Fee, res.ExpectedFee)
	klog.V(1).Infof("payer balance before fee: %d (%s SOL)", res.PayerBalance, lamportsToSol(res.PayerBalance))
	return nil
}

func lamportsToSol(lamports uint64) string {
	return fmt.Sprintf("%d.%09d", lamports/solana.LAMPORTS_PER_SOL, lamports%solana.LAMPORTS_PER_SOL)
}
