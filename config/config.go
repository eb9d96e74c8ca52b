package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LotteryGenesis holds the lottery parameters written into state at genesis.
type LotteryGenesis struct {
	Admin          string `json:"admin" toml:"admin"` // pubkey hex
	FeeRateBps     uint64 `json:"fee_rate_bps" toml:"fee_rate_bps"`
	MinBet         uint64 `json:"min_bet" toml:"min_bet"`
	MaxBet         uint64 `json:"max_bet" toml:"max_bet"`
	BetDenom       string `json:"bet_denom" toml:"bet_denom"`
	PauseRequested bool   `json:"pause_requested,omitempty" toml:"pause_requested"`
}

// Validate checks that the genesis parameters satisfy the same bounds the
// runtime config operations enforce. A config file must not be able to seed a
// state that update_config could never reach.
func (lg LotteryGenesis) Validate() error {
	if lg.FeeRateBps > 10_000 {
		return fmt.Errorf("genesis fee rate %d bps exceeds 10000", lg.FeeRateBps)
	}
	if lg.MinBet == 0 || lg.MinBet >= lg.MaxBet {
		return fmt.Errorf("genesis bet bounds invalid: min %d, max %d", lg.MinBet, lg.MaxBet)
	}
	if lg.BetDenom == "" {
		return fmt.Errorf("genesis bet denom is empty")
	}
	return nil
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id" toml:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc" toml:"alloc"` // pubkey hex -> initial balance
	Lottery LotteryGenesis    `json:"lottery" toml:"lottery"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id" toml:"node_id"`
	DataDir       string        `json:"data_dir" toml:"data_dir"`
	RPCPort       int           `json:"rpc_port" toml:"rpc_port"`
	RPCAuthToken  string        `json:"rpc_auth_token,omitempty" toml:"rpc_auth_token"` // empty disables auth
	GatewayPort   int           `json:"gateway_port" toml:"gateway_port"`
	BlockInterval int           `json:"block_interval_ms" toml:"block_interval_ms"` // 0 -> 1000
	MaxBlockTxs   int           `json:"max_block_txs" toml:"max_block_txs"`         // max transactions per block; 0 -> 500
	Validators    []string      `json:"validators" toml:"validators"`               // authorised proposer pubkey hexes
	Genesis       GenesisConfig `json:"genesis" toml:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		GatewayPort:   8080,
		BlockInterval: 1000,
		MaxBlockTxs:   500,
		Genesis: GenesisConfig{
			ChainID: "luckchain-dev",
			Alloc:   map[string]uint64{},
			Lottery: LotteryGenesis{
				FeeRateBps: 1000,
				MinBet:     1,
				MaxBet:     100_000,
				BetDenom:   "luck",
			},
		},
	}
}

// Load reads a config file from path. TOML and JSON are both accepted; the
// format is picked by file extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
