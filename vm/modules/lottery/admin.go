package lottery

import (
	"encoding/json"
	"fmt"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/vm"
)

func requireAdmin(ctx *vm.Context, cfg *core.LotteryConfig) error {
	if ctx.Tx.From != cfg.Admin {
		return ErrUnauthorized
	}
	return nil
}

func handleUpdateConfig(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	cfg, err := ctx.State.GetLotteryConfig()
	if err != nil {
		return fmt.Errorf("load lottery config: %w", err)
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}

	var p core.UpdateConfigPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_config payload: %w", err)
	}

	if p.FeeRateBps != nil {
		if *p.FeeRateBps > feeDenominator {
			return &InvalidFeeRateError{Bps: *p.FeeRateBps}
		}
		cfg.FeeRateBps = *p.FeeRateBps
	}
	if p.MinBet != nil {
		cfg.MinBet = *p.MinBet
	}
	if p.MaxBet != nil {
		cfg.MaxBet = *p.MaxBet
	}
	if cfg.MinBet == 0 || cfg.MinBet >= cfg.MaxBet {
		return &InvalidBetAmountError{Amount: cfg.MinBet}
	}
	if p.BetDenom != nil {
		if *p.BetDenom == "" {
			return ErrInvalidBetDenom
		}
		cfg.BetDenom = *p.BetDenom
	}
	if p.PauseRequested != nil {
		cfg.PauseRequested = *p.PauseRequested
	}
	if err := ctx.State.SetLotteryConfig(cfg); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventConfigUpdated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"fee_rate_bps": cfg.FeeRateBps,
				"min_bet":      cfg.MinBet,
				"max_bet":      cfg.MaxBet,
				"bet_denom":    cfg.BetDenom,
			},
		})
	}
	return nil
}

func handleSetPaused(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	cfg, err := ctx.State.GetLotteryConfig()
	if err != nil {
		return fmt.Errorf("load lottery config: %w", err)
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}

	var p core.SetPausedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_paused payload: %w", err)
	}
	cfg.Paused = p.Paused
	if !p.Paused {
		// Resuming also clears any pending pause request.
		cfg.PauseRequested = false
	}
	if err := ctx.State.SetLotteryConfig(cfg); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventPausedSet,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"paused": p.Paused},
		})
	}
	return nil
}

func handleWithdrawFee(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	cfg, err := ctx.State.GetLotteryConfig()
	if err != nil {
		return fmt.Errorf("load lottery config: %w", err)
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}

	var p core.WithdrawFeePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode withdraw_fee payload: %w", err)
	}
	if p.Amount == 0 {
		return &InvalidBetAmountError{Amount: 0}
	}

	pool, err := ctx.State.GetAccount(PoolAccount)
	if err != nil {
		return fmt.Errorf("pool account: %w", err)
	}
	if pool.Balance < p.Amount {
		return ErrInsufficientFunds
	}
	pool.Balance -= p.Amount
	if err := ctx.State.SetAccount(pool); err != nil {
		return err
	}
	admin, err := ctx.State.GetAccount(cfg.Admin)
	if err != nil {
		return fmt.Errorf("admin account: %w", err)
	}
	admin.Balance += p.Amount
	if err := ctx.State.SetAccount(admin); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventFeeWithdrawn,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"amount": p.Amount,
				"to":     cfg.Admin,
			},
		})
	}
	return nil
}
