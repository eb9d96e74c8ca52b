// Package lottery implements the commit-reveal lottery that runs on the
// chain: phase-gated bets, reveals and settlement over the shared state
// ledger. The block height is the phase clock; a cycle is CycleLength blocks
// split into commitment, reveal and settlement windows.
package lottery

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/vm"
)

// PoolAccount is the ledger account that holds all locked bets. Bets credit
// it, settlement pays winners from it, withdraw_fee drains accrued fees.
const PoolAccount = "lottery:pool"

func init() {
	vm.Register(core.TxPlaceBet, handlePlaceBet)
	vm.Register(core.TxRevealRandom, handleRevealRandom)
	vm.Register(core.TxSettleLottery, handleSettleLottery)
	vm.Register(core.TxUpdateConfig, handleUpdateConfig)
	vm.Register(core.TxSetPaused, handleSetPaused)
	vm.Register(core.TxWithdrawFee, handleWithdrawFee)
}

// sessionID names a cycle's session after the height it was created at.
func sessionID(height int64) string {
	return fmt.Sprintf("session_%d", height)
}

func handlePlaceBet(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	height := ctx.Block.Header.Height
	phase := PhaseFromHeight(height)
	if phase != core.PhaseCommitment {
		return invalidPhase(core.PhaseCommitment, phase)
	}

	cfg, err := ctx.State.GetLotteryConfig()
	if err != nil {
		return fmt.Errorf("load lottery config: %w", err)
	}
	if cfg.Paused {
		return ErrContractPaused
	}
	// A requested pause takes effect at the first block of the next cycle.
	if cfg.PauseRequested && IsCycleStart(height) {
		return ErrContractPaused
	}

	var p core.BetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode place_bet payload: %w", err)
	}
	if p.Amount < cfg.MinBet || p.Amount > cfg.MaxBet {
		return &InvalidBetAmountError{Amount: p.Amount}
	}
	if p.Amount == 0 || p.Amount > MaxTicketsPerBet {
		return &InvalidBetAmountError{Amount: p.Amount}
	}
	if err := ValidateHashFormat(p.CommitmentHash); err != nil {
		return err
	}

	// Load or lazily create the cycle's session. New sessions can only be
	// opened in the commitment phase, which is already established above.
	session, err := ctx.State.GetCurrentSession()
	switch {
	case errors.Is(err, core.ErrNotFound):
		session = &core.Session{
			ID:            sessionID(height),
			Phase:         phase,
			CreatedHeight: height,
		}
	case err != nil:
		return fmt.Errorf("load session: %w", err)
	default:
		if session.Settled {
			// The previous cycle is closed; this bet opens a fresh one.
			session = &core.Session{
				ID:            sessionID(height),
				Phase:         phase,
				CreatedHeight: height,
			}
		} else if !Compatible(session.Phase, phase) {
			return invalidPhase(session.Phase, phase)
		}
	}

	// One commitment per participant per cycle. A commitment left over from
	// an earlier, already-settled cycle is superseded rather than blocking.
	existing, err := ctx.State.GetCommitment(ctx.Tx.From)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("load commitment: %w", err)
	}
	if existing != nil && existing.SessionID == session.ID {
		return ErrParticipantAlreadyExists
	}

	// Lock the stake: debit the bettor, credit the pool account.
	bettor, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return fmt.Errorf("bettor account: %w", err)
	}
	if bettor.Balance < p.Amount {
		return ErrInsufficientFunds
	}
	bettor.Balance -= p.Amount
	if err := ctx.State.SetAccount(bettor); err != nil {
		return err
	}
	pool, err := ctx.State.GetAccount(PoolAccount)
	if err != nil {
		return fmt.Errorf("pool account: %w", err)
	}
	pool.Balance += p.Amount
	if err := ctx.State.SetAccount(pool); err != nil {
		return err
	}

	if err := ctx.State.SetCommitment(&core.Commitment{
		Participant: ctx.Tx.From,
		Hash:        p.CommitmentHash,
		BetAmount:   p.Amount,
		SessionID:   session.ID,
		SubmittedAt: ctx.Block.Header.Timestamp,
	}); err != nil {
		return err
	}

	// Numbers and seed stay empty until reveal.
	session.Participants = append(session.Participants, core.Participant{
		Address:        ctx.Tx.From,
		BetAmount:      p.Amount,
		CommitmentHash: p.CommitmentHash,
		BetTime:        ctx.Block.Header.Timestamp,
	})
	session.TotalPool += p.Amount
	session.ServiceFee = ServiceFee(session.TotalPool, cfg.FeeRateBps)
	if err := ctx.State.SetCurrentSession(session); err != nil {
		return err
	}

	stats, err := ctx.State.GetStats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	stats.TotalParticipants++
	stats.TotalPool += p.Amount
	stats.TotalServiceFee += ServiceFee(p.Amount, cfg.FeeRateBps)
	stats.LastUpdated = ctx.Block.Header.Timestamp
	if err := ctx.State.SetStats(stats); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventBetPlaced,
			TxID:        ctx.Tx.ID,
			BlockHeight: height,
			Data: map[string]any{
				"session_id":  session.ID,
				"participant": ctx.Tx.From,
				"amount":      p.Amount,
			},
		})
	}
	return nil
}

func handleRevealRandom(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	height := ctx.Block.Header.Height
	phase := PhaseFromHeight(height)
	if phase != core.PhaseReveal {
		return invalidPhase(core.PhaseReveal, phase)
	}

	var p core.RevealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reveal_random payload: %w", err)
	}
	if err := ValidateNumbers(p.LuckyNumbers); err != nil {
		return err
	}
	if err := ValidateNumberCounts(p.LuckyNumbers); err != nil {
		return err
	}

	commitment, err := ctx.State.GetCommitment(ctx.Tx.From)
	if errors.Is(err, core.ErrNotFound) {
		return ErrParticipantNotFound
	}
	if err != nil {
		return fmt.Errorf("load commitment: %w", err)
	}

	// Ticket conservation: one token buys exactly one ticket, so the reveal
	// must carry exactly bet_amount numbers.
	if uint64(len(p.LuckyNumbers)) != commitment.BetAmount {
		return invalidNumbers(fmt.Sprintf(
			"ticket count %d does not equal bet amount %d",
			len(p.LuckyNumbers), commitment.BetAmount))
	}
	if err := VerifyCommitment(commitment.BetAmount, p.LuckyNumbers, p.RandomSeed, commitment.Hash); err != nil {
		return err
	}

	session, err := ctx.State.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session.Settled {
		return ErrLotteryAlreadySettled
	}
	if session.ID != commitment.SessionID {
		return ErrParticipantNotFound
	}
	if !Compatible(session.Phase, phase) {
		return invalidPhase(session.Phase, phase)
	}

	found := false
	for i := range session.Participants {
		part := &session.Participants[i]
		if part.Address != ctx.Tx.From {
			continue
		}
		if part.Revealed {
			return ErrAlreadyRevealed
		}
		part.LuckyNumbers = p.LuckyNumbers
		part.RandomSeed = p.RandomSeed
		part.Revealed = true
		part.RevealTime = ctx.Block.Header.Timestamp
		found = true
		break
	}
	if !found {
		return ErrParticipantNotFound
	}
	if err := ctx.State.SetCurrentSession(session); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventRandomRevealed,
			TxID:        ctx.Tx.ID,
			BlockHeight: height,
			Data: map[string]any{
				"session_id":  session.ID,
				"participant": ctx.Tx.From,
				"tickets":     len(p.LuckyNumbers),
			},
		})
	}
	return nil
}

func handleSettleLottery(ctx *vm.Context, payload json.RawMessage) error {
	release, err := acquireGuard(ctx.State)
	if err != nil {
		return err
	}
	defer release()

	height := ctx.Block.Header.Height
	phase := PhaseFromHeight(height)
	if phase != core.PhaseSettlement {
		return invalidPhase(core.PhaseSettlement, phase)
	}

	session, err := ctx.State.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session.Settled {
		return ErrLotteryAlreadySettled
	}

	winning, err := WinningNumber(session.Participants)
	if err != nil {
		return err
	}
	winners, err := CalculateWinners(session.Participants, winning)
	if err != nil {
		return err
	}
	rewardPool := session.TotalPool - session.ServiceFee
	winners = DistributeRewards(winners, rewardPool)

	// Pay winners from the pool account. Per-address totals are aggregated so
	// each account is written once.
	var totalPaid uint64
	payout := make(map[string]uint64)
	order := make([]string, 0, len(winners))
	for _, w := range winners {
		if _, seen := payout[w.Address]; !seen {
			order = append(order, w.Address)
		}
		payout[w.Address] += w.RewardAmount
		totalPaid += w.RewardAmount
	}
	pool, err := ctx.State.GetAccount(PoolAccount)
	if err != nil {
		return fmt.Errorf("pool account: %w", err)
	}
	if pool.Balance < totalPaid {
		return ErrInsufficientFunds
	}
	pool.Balance -= totalPaid
	if err := ctx.State.SetAccount(pool); err != nil {
		return err
	}
	for _, addr := range order {
		acc, err := ctx.State.GetAccount(addr)
		if err != nil {
			return fmt.Errorf("winner account %q: %w", addr, err)
		}
		acc.Balance += payout[addr]
		if err := ctx.State.SetAccount(acc); err != nil {
			return err
		}
	}

	result := &core.LotteryResult{
		SessionID:     session.ID,
		WinningNumber: winning,
		TotalPool:     session.TotalPool,
		ServiceFee:    session.ServiceFee,
		RewardPool:    rewardPool,
		Winners:       winners,
		SettledAt:     ctx.Block.Header.Timestamp,
		SettledHeight: height,
	}
	if err := ctx.State.SetResult(result); err != nil {
		return err
	}

	session.WinningNumber = &winning
	session.Settled = true
	if err := ctx.State.SetCurrentSession(session); err != nil {
		return err
	}

	stats, err := ctx.State.GetStats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	stats.TotalSessions++
	stats.TotalRewards += totalPaid
	stats.LastUpdated = ctx.Block.Header.Timestamp
	if err := ctx.State.SetStats(stats); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventLotterySettled,
			TxID:        ctx.Tx.ID,
			BlockHeight: height,
			Data: map[string]any{
				"session_id":     session.ID,
				"winning_number": winning,
				"winners":        winners,
				"reward_pool":    rewardPool,
			},
		})
	}
	return nil
}
