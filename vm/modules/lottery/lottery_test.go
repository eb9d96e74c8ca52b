package lottery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/internal/testutil"
	"github.com/ddlab/luckchain/storage"
	"github.com/ddlab/luckchain/vm"
)

const (
	adminAddr = "adminadminadminadminadminadminadminadminadminadminadminadmin1234"
	aliceAddr = "alicealicealicealicealicealicealicealicealicealicealicealice1234"
	bobAddr   = "bobbobbobbobbobbobbobbobbobbobbobbobbobbobbobbobbobbobbobbob1234"
)

// Representative heights inside each phase window.
const (
	commitH = int64(100)
	revealH = int64(6100)
	settleH = int64(9100)
)

func testState(t *testing.T) *storage.StateDB {
	t.Helper()
	state := testutil.NewStateDB()
	require.NoError(t, state.SetLotteryConfig(&core.LotteryConfig{
		Admin:      adminAddr,
		FeeRateBps: 1000,
		MinBet:     1,
		MaxBet:     100_000,
		BetDenom:   "luck",
	}))
	return state
}

func fund(t *testing.T, state core.State, addr string, amount uint64) {
	t.Helper()
	acc, err := state.GetAccount(addr)
	require.NoError(t, err)
	acc.Balance = amount
	require.NoError(t, state.SetAccount(acc))
}

func ctxAt(state core.State, height int64, from string) *vm.Context {
	block := core.NewBlock(height, "prev", "proposer", nil)
	return &vm.Context{
		State: state,
		Block: block,
		Tx:    &core.Transaction{ID: "tx", From: from},
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func placeBet(t *testing.T, state core.State, height int64, from string, amount uint64, numbers []uint16, seed string) error {
	t.Helper()
	return handlePlaceBet(ctxAt(state, height, from), mustJSON(t, core.BetPayload{
		CommitmentHash: Digest(amount, numbers, seed),
		Amount:         amount,
	}))
}

func reveal(t *testing.T, state core.State, height int64, from string, numbers []uint16, seed string) error {
	t.Helper()
	return handleRevealRandom(ctxAt(state, height, from), mustJSON(t, core.RevealPayload{
		LuckyNumbers: numbers,
		RandomSeed:   seed,
	}))
}

// ---- place_bet ----

func TestPlaceBet(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 3, []uint16{1, 2, 3}, "seed"))

	alice, err := state.GetAccount(aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(997), alice.Balance)

	pool, err := state.GetAccount(PoolAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pool.Balance)

	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	assert.Equal(t, "session_100", sess.ID)
	assert.Equal(t, core.PhaseCommitment, sess.Phase)
	assert.Equal(t, uint64(3), sess.TotalPool)
	require.Len(t, sess.Participants, 1)
	assert.Equal(t, aliceAddr, sess.Participants[0].Address)
	assert.False(t, sess.Participants[0].Revealed)
	assert.Empty(t, sess.Participants[0].LuckyNumbers)

	cmt, err := state.GetCommitment(aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, cmt.SessionID)
	assert.Equal(t, uint64(3), cmt.BetAmount)

	stats, err := state.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalParticipants)
	assert.Equal(t, uint64(3), stats.TotalPool)

	// The latch is released once the handler returns.
	held, err := state.GetGuard()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestPlaceBetOutsideCommitmentPhase(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	var phaseErr *InvalidPhaseError
	err := placeBet(t, state, revealH, aliceAddr, 1, []uint16{1}, "s")
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, core.PhaseCommitment, phaseErr.Expected)
	assert.Equal(t, core.PhaseReveal, phaseErr.Actual)

	err = placeBet(t, state, settleH, aliceAddr, 1, []uint16{1}, "s")
	assert.ErrorAs(t, err, &phaseErr)
}

func TestPlaceBetPaused(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	cfg, err := state.GetLotteryConfig()
	require.NoError(t, err)
	cfg.Paused = true
	require.NoError(t, state.SetLotteryConfig(cfg))

	err = placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s")
	assert.ErrorIs(t, err, ErrContractPaused)
}

func TestPlaceBetPauseRequestedAtCycleStart(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	cfg, err := state.GetLotteryConfig()
	require.NoError(t, err)
	cfg.PauseRequested = true
	require.NoError(t, state.SetLotteryConfig(cfg))

	// Mid-cycle bets still go through; the request bites at the boundary.
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))

	fund(t, state, bobAddr, 1000)
	err = placeBet(t, state, 2*CycleLength, bobAddr, 1, []uint16{1}, "s")
	assert.ErrorIs(t, err, ErrContractPaused)
}

func TestPlaceBetAmountBounds(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1_000_000)

	cfg, err := state.GetLotteryConfig()
	require.NoError(t, err)
	cfg.MinBet = 10
	cfg.MaxBet = 100
	require.NoError(t, state.SetLotteryConfig(cfg))

	var amtErr *InvalidBetAmountError
	assert.ErrorAs(t, placeBet(t, state, commitH, aliceAddr, 9, []uint16{1}, "s"), &amtErr)
	assert.ErrorAs(t, placeBet(t, state, commitH, aliceAddr, 101, []uint16{1}, "s"), &amtErr)
	assert.NoError(t, placeBet(t, state, commitH, aliceAddr, 10, make([]uint16, 10), "s"))
}

func TestPlaceBetInvalidHash(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	err := handlePlaceBet(ctxAt(state, commitH, aliceAddr), mustJSON(t, core.BetPayload{
		CommitmentHash: "not-a-hash",
		Amount:         1,
	}))
	assert.ErrorIs(t, err, ErrInvalidCommitmentHash)
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 2)

	err := placeBet(t, state, commitH, aliceAddr, 3, []uint16{1, 2, 3}, "s")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPlaceBetDuplicate(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))
	err := placeBet(t, state, commitH+1, aliceAddr, 1, []uint16{2}, "s2")
	assert.ErrorIs(t, err, ErrParticipantAlreadyExists)
}

func TestPlaceBetSupersedesStaleCommitment(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)

	// Leftover commitment from a settled cycle must not block a new bet.
	require.NoError(t, state.SetCommitment(&core.Commitment{
		Participant: aliceAddr,
		Hash:        Digest(1, []uint16{1}, "old"),
		BetAmount:   1,
		SessionID:   "session_old",
	}))
	require.NoError(t, state.SetCurrentSession(&core.Session{
		ID:      "session_old",
		Phase:   core.PhaseCommitment,
		Settled: true,
	}))

	require.NoError(t, placeBet(t, state, CycleLength+5, aliceAddr, 2, []uint16{1, 2}, "new"))

	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	assert.Equal(t, "session_10005", sess.ID)

	cmt, err := state.GetCommitment(aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, cmt.SessionID)
	assert.Equal(t, uint64(2), cmt.BetAmount)
}

// ---- reveal_random ----

func TestRevealFlow(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	numbers := []uint16{7, 42}
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 2, numbers, "seed"))

	require.NoError(t, reveal(t, state, revealH, aliceAddr, numbers, "seed"))

	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	require.Len(t, sess.Participants, 1)
	p := sess.Participants[0]
	assert.True(t, p.Revealed)
	assert.Equal(t, numbers, p.LuckyNumbers)
	assert.Equal(t, "seed", p.RandomSeed)
}

func TestRevealOutsidePhase(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))

	var phaseErr *InvalidPhaseError
	assert.ErrorAs(t, reveal(t, state, commitH+1, aliceAddr, []uint16{1}, "s"), &phaseErr)
	assert.ErrorAs(t, reveal(t, state, settleH, aliceAddr, []uint16{1}, "s"), &phaseErr)
}

func TestRevealWithoutCommitment(t *testing.T) {
	state := testState(t)
	err := reveal(t, state, revealH, aliceAddr, []uint16{1}, "s")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestRevealTicketCountMismatch(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 2, []uint16{1, 2}, "s"))

	var numErr *InvalidLuckyNumbersError
	assert.ErrorAs(t, reveal(t, state, revealH, aliceAddr, []uint16{1}, "s"), &numErr)
}

func TestRevealHashMismatch(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 2, []uint16{1, 2}, "s"))

	err := reveal(t, state, revealH, aliceAddr, []uint16{1, 3}, "s")
	assert.ErrorIs(t, err, ErrCommitmentHashMismatch)
	err = reveal(t, state, revealH, aliceAddr, []uint16{1, 2}, "other")
	assert.ErrorIs(t, err, ErrCommitmentHashMismatch)
}

func TestRevealTwice(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))
	require.NoError(t, reveal(t, state, revealH, aliceAddr, []uint16{1}, "s"))

	err := reveal(t, state, revealH+1, aliceAddr, []uint16{1}, "s")
	assert.ErrorIs(t, err, ErrAlreadyRevealed)
}

// ---- settle_lottery ----

func TestSettleFlow(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	fund(t, state, bobAddr, 1000)

	// With a single revealer the winning number is fully determined by the
	// seed, so alice can be made a guaranteed double winner.
	winning, err := WinningNumber([]core.Participant{
		{Address: aliceAddr, Revealed: true, RandomSeed: "alice-seed"},
	})
	require.NoError(t, err)
	losing := (winning + 1) % NumberRange

	aliceNums := []uint16{winning, winning, losing}
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 3, aliceNums, "alice-seed"))
	bobNums := []uint16{losing}
	require.NoError(t, placeBet(t, state, commitH+1, bobAddr, 1, bobNums, "bob-seed"))

	// Bob never reveals, so his seed stays out of the draw and his ticket
	// cannot win.
	require.NoError(t, reveal(t, state, revealH, aliceAddr, aliceNums, "alice-seed"))

	require.NoError(t, handleSettleLottery(ctxAt(state, settleH, bobAddr), mustJSON(t, core.SettlePayload{})))

	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	assert.True(t, sess.Settled)
	require.NotNil(t, sess.WinningNumber)
	assert.Equal(t, winning, *sess.WinningNumber)

	result, err := state.GetResult(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, winning, result.WinningNumber)
	assert.Equal(t, uint64(4), result.TotalPool)
	assert.Equal(t, uint64(0), result.ServiceFee) // floor(4*10%) = 0
	require.Len(t, result.Winners, 2)

	// Reward pool is 4, below 2*800, so each winning ticket gets floor(4/2).
	for _, w := range result.Winners {
		assert.Equal(t, aliceAddr, w.Address)
		assert.Equal(t, uint64(2), w.RewardAmount)
	}

	alice, err := state.GetAccount(aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1001), alice.Balance) // 1000 - 3 + 4

	pool, err := state.GetAccount(PoolAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pool.Balance)

	stats, err := state.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalSessions)
	assert.Equal(t, uint64(4), stats.TotalRewards)
}

func TestSettleFixedReward(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 10_000)

	winning, err := WinningNumber([]core.Participant{
		{Address: aliceAddr, Revealed: true, RandomSeed: "seed"},
	})
	require.NoError(t, err)

	// A large pool relative to one winning ticket pays the fixed prize.
	// Losing tickets cycle over the other values to stay under the
	// per-number cap.
	nums := make([]uint16, 5000)
	for i := range nums {
		v := uint16((int(winning) + 1 + i) % NumberRange)
		if v == winning {
			v = (winning + 1) % NumberRange
		}
		nums[i] = v
	}
	nums[0] = winning
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 5000, nums, "seed"))
	require.NoError(t, reveal(t, state, revealH, aliceAddr, nums, "seed"))
	require.NoError(t, handleSettleLottery(ctxAt(state, settleH, aliceAddr), mustJSON(t, core.SettlePayload{})))

	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	result, err := state.GetResult(sess.ID)
	require.NoError(t, err)
	require.Len(t, result.Winners, 1)
	assert.Equal(t, FixedReward, result.Winners[0].RewardAmount)

	// Fee 500 is retained, prize 800 paid, the rest stays pooled.
	pool, err := state.GetAccount(PoolAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000-800), pool.Balance)
}

func TestSettleWithoutSession(t *testing.T) {
	state := testState(t)
	err := handleSettleLottery(ctxAt(state, settleH, aliceAddr), mustJSON(t, core.SettlePayload{}))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSettleOutsidePhase(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))

	var phaseErr *InvalidPhaseError
	err := handleSettleLottery(ctxAt(state, revealH, aliceAddr), mustJSON(t, core.SettlePayload{}))
	assert.ErrorAs(t, err, &phaseErr)
}

func TestSettleNobodyRevealed(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))

	err := handleSettleLottery(ctxAt(state, settleH, aliceAddr), mustJSON(t, core.SettlePayload{}))
	assert.ErrorIs(t, err, ErrNoParticipants)

	// The session stays open, not silently marked settled.
	sess, err := state.GetCurrentSession()
	require.NoError(t, err)
	assert.False(t, sess.Settled)
}

func TestSettleTwice(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))
	require.NoError(t, reveal(t, state, revealH, aliceAddr, []uint16{1}, "s"))
	require.NoError(t, handleSettleLottery(ctxAt(state, settleH, aliceAddr), mustJSON(t, core.SettlePayload{})))

	err := handleSettleLottery(ctxAt(state, settleH+1, aliceAddr), mustJSON(t, core.SettlePayload{}))
	assert.ErrorIs(t, err, ErrLotteryAlreadySettled)
}

// ---- reentrancy guard ----

func TestGuardBlocksNestedCalls(t *testing.T) {
	state := testState(t)
	fund(t, state, aliceAddr, 1000)
	require.NoError(t, state.SetGuard(true))

	err := placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s")
	assert.ErrorIs(t, err, ErrReentrancyDetected)

	require.NoError(t, state.SetGuard(false))
	assert.NoError(t, placeBet(t, state, commitH, aliceAddr, 1, []uint16{1}, "s"))
}

// ---- admin operations ----

func TestUpdateConfig(t *testing.T) {
	state := testState(t)

	newBps := uint64(500)
	newMax := uint64(50_000)
	err := handleUpdateConfig(ctxAt(state, commitH, adminAddr), mustJSON(t, core.UpdateConfigPayload{
		FeeRateBps: &newBps,
		MaxBet:     &newMax,
	}))
	require.NoError(t, err)

	cfg, err := state.GetLotteryConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cfg.FeeRateBps)
	assert.Equal(t, uint64(50_000), cfg.MaxBet)
	assert.Equal(t, uint64(1), cfg.MinBet) // untouched
}

func TestUpdateConfigUnauthorized(t *testing.T) {
	state := testState(t)
	newBps := uint64(500)
	err := handleUpdateConfig(ctxAt(state, commitH, aliceAddr), mustJSON(t, core.UpdateConfigPayload{
		FeeRateBps: &newBps,
	}))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateConfigValidation(t *testing.T) {
	state := testState(t)

	bad := uint64(10_001)
	var feeErr *InvalidFeeRateError
	err := handleUpdateConfig(ctxAt(state, commitH, adminAddr), mustJSON(t, core.UpdateConfigPayload{
		FeeRateBps: &bad,
	}))
	assert.ErrorAs(t, err, &feeErr)

	zero := uint64(0)
	var amtErr *InvalidBetAmountError
	err = handleUpdateConfig(ctxAt(state, commitH, adminAddr), mustJSON(t, core.UpdateConfigPayload{
		MinBet: &zero,
	}))
	assert.ErrorAs(t, err, &amtErr)

	// min must stay strictly below max; equal bounds are rejected too.
	both := uint64(100)
	err = handleUpdateConfig(ctxAt(state, commitH, adminAddr), mustJSON(t, core.UpdateConfigPayload{
		MinBet: &both,
		MaxBet: &both,
	}))
	assert.ErrorAs(t, err, &amtErr)

	empty := ""
	err = handleUpdateConfig(ctxAt(state, commitH, adminAddr), mustJSON(t, core.UpdateConfigPayload{
		BetDenom: &empty,
	}))
	assert.ErrorIs(t, err, ErrInvalidBetDenom)
}

func TestSetPaused(t *testing.T) {
	state := testState(t)

	require.NoError(t, handleSetPaused(ctxAt(state, commitH, adminAddr), mustJSON(t, core.SetPausedPayload{Paused: true})))
	cfg, err := state.GetLotteryConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Paused)

	// Unpausing clears a pending deferred pause as well.
	cfg.PauseRequested = true
	require.NoError(t, state.SetLotteryConfig(cfg))
	require.NoError(t, handleSetPaused(ctxAt(state, commitH, adminAddr), mustJSON(t, core.SetPausedPayload{Paused: false})))
	cfg, err = state.GetLotteryConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Paused)
	assert.False(t, cfg.PauseRequested)

	err = handleSetPaused(ctxAt(state, commitH, aliceAddr), mustJSON(t, core.SetPausedPayload{Paused: true}))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWithdrawFee(t *testing.T) {
	state := testState(t)
	fund(t, state, PoolAccount, 500)

	require.NoError(t, handleWithdrawFee(ctxAt(state, commitH, adminAddr), mustJSON(t, core.WithdrawFeePayload{Amount: 200})))

	pool, err := state.GetAccount(PoolAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), pool.Balance)
	admin, err := state.GetAccount(adminAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), admin.Balance)

	err = handleWithdrawFee(ctxAt(state, commitH, adminAddr), mustJSON(t, core.WithdrawFeePayload{Amount: 1000}))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	err = handleWithdrawFee(ctxAt(state, commitH, aliceAddr), mustJSON(t, core.WithdrawFeePayload{Amount: 1}))
	assert.ErrorIs(t, err, ErrUnauthorized)
}
