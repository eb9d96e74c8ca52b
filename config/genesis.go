package config

import (
	"fmt"
	"strings"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 from the config's Alloc map.
// It also sets initial account balances in state and commits.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	// Credit all alloc accounts
	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	// Seed the lottery parameters. An unset admin defaults to the genesis
	// proposer so single-node development configs work out of the box.
	lg := cfg.Genesis.Lottery
	if err := lg.Validate(); err != nil {
		return nil, err
	}
	admin := lg.Admin
	if admin == "" {
		admin = proposerPub.Hex()
	} else if _, err := crypto.PubKeyFromHex(admin); err != nil {
		return nil, fmt.Errorf("genesis admin: %w", err)
	}
	if err := state.SetLotteryConfig(&core.LotteryConfig{
		Admin:          admin,
		FeeRateBps:     lg.FeeRateBps,
		MinBet:         lg.MinBet,
		MaxBet:         lg.MaxBet,
		BetDenom:       lg.BetDenom,
		PauseRequested: lg.PauseRequested,
	}); err != nil {
		return nil, err
	}
	if err := state.SetStats(&core.Stats{}); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// Embed chain ID in PrevHash comment via TxRoot for identification
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
