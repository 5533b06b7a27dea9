package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/fees"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"
)

var ErrInvalidPubkey = errors.New("invalid pubkey")

// Config is the YAML configuration of a pocbank run.
type Config struct {
	LamportsPerSignature uint64 `yaml:"lamports_per_signature"`
	FeeCollector         string `yaml:"fee_collector"`
	AccountsDb           string `yaml:"accounts_db"`
	Commitment           string `yaml:"commitment"`

	Account AccountConfig `yaml:"account"`
	// Genesis lists extra accounts seeded into the bank.
	Genesis []GenesisAccount `yaml:"genesis"`

	Rpc RpcConfig `yaml:"rpc"`
}

// AccountConfig seeds the data account the program logs.
type AccountConfig struct {
	Lamports uint64 `yaml:"lamports"`
	// Data is base58 encoded. The empty string means no data.
	Data string `yaml:"data"`
}

type GenesisAccount struct {
	Pubkey     string `yaml:"pubkey"`
	Lamports   uint64 `yaml:"lamports"`
	Owner      string `yaml:"owner"`
	Data       string `yaml:"data"`
	Executable bool   `yaml:"executable"`
	RentEpoch  uint64 `yaml:"rent_epoch"`
}

type RpcConfig struct {
	Url   string   `yaml:"url"`
	Clone []string `yaml:"clone"`
}

func Default() *Config {
	return &Config{
		LamportsPerSignature: fees.DefaultLamportsPerSignature,
		Commitment:           string(rpc.CommitmentConfirmed),
		Account: AccountConfig{
			Lamports: 10000,
			Data:     base58.Encode([]byte{1}),
		},
	}
}

// Load reads a YAML file over the defaults. Unknown fields are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch rpc.CommitmentType(cfg.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}

	if cfg.FeeCollector != "" {
		_, err := decodePubkey(cfg.FeeCollector)
		if err != nil {
			return fmt.Errorf("fee_collector: %w", err)
		}
	}
	if cfg.Account.Data != "" {
		_, err := base58.Decode(cfg.Account.Data)
		if err != nil {
			return fmt.Errorf("account.data: %w", err)
		}
	}
	_, err := cfg.GenesisAccounts()
	if err != nil {
		return err
	}
	_, err = cfg.ClonePubkeys()
	if err != nil {
		return err
	}
	if len(cfg.Rpc.Clone) != 0 && cfg.Rpc.Url == "" {
		return errors.New("rpc.clone requires rpc.url")
	}
	return nil
}

func decodePubkey(s string) (solana.PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w %q: %s", ErrInvalidPubkey, s, err)
	}
	if len(b) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%w %q: %d bytes", ErrInvalidPubkey, s, len(b))
	}
	return solana.PublicKeyFromBytes(b), nil
}

// FeeCollectorPubkey returns the zero key when no collector is configured,
// leaving the bank to pick one.
func (cfg *Config) FeeCollectorPubkey() solana.PublicKey {
	if cfg.FeeCollector == "" {
		return solana.PublicKey{}
	}
	pk, _ := decodePubkey(cfg.FeeCollector)
	return pk
}

// AccountData decodes account.data. An explicit empty string seeds an
// account without data; leaving the field out keeps the default [1].
func (cfg *Config) AccountData() []byte {
	if cfg.Account.Data == "" {
		return []byte{}
	}
	data, err := base58.Decode(cfg.Account.Data)
	if err != nil {
		return nil
	}
	return data
}

func (cfg *Config) GenesisAccounts() ([]accounts.Account, error) {
	accts := make([]accounts.Account, 0, len(cfg.Genesis))
	for idx, genesis := range cfg.Genesis {
		pubkey, err := decodePubkey(genesis.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d].pubkey: %w", idx, err)
		}

		acct := accounts.Account{
			Key:        pubkey,
			Lamports:   genesis.Lamports,
			Executable: genesis.Executable,
			RentEpoch:  genesis.RentEpoch,
		}
		if genesis.Owner != "" {
			owner, err := decodePubkey(genesis.Owner)
			if err != nil {
				return nil, fmt.Errorf("genesis[%d].owner: %w", idx, err)
			}
			acct.Owner = owner
		}
		if genesis.Data != "" {
			acct.Data, err = base58.Decode(genesis.Data)
			if err != nil {
				return nil, fmt.Errorf("genesis[%d].data: %w", idx, err)
			}
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

func (cfg *Config) ClonePubkeys() ([]solana.PublicKey, error) {
	pubkeys := make([]solana.PublicKey, 0, len(cfg.Rpc.Clone))
	for idx, s := range cfg.Rpc.Clone {
		pk, err := decodePubkey(s)
		if err != nil {
			return nil, fmt.Errorf("rpc.clone[%d]: %w", idx, err)
		}
		pubkeys = append(pubkeys, pk)
	}
	return pubkeys, nil
}
