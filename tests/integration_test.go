package tests

import (
	"testing"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/indexer"
	"github.com/ddlab/luckchain/internal/testutil"
	"github.com/ddlab/luckchain/vm"
	"github.com/ddlab/luckchain/vm/modules/lottery"
	"github.com/ddlab/luckchain/wallet"

	_ "github.com/ddlab/luckchain/vm/modules/economy"
)

const chainID = "test-chain"

type testEnv struct {
	state   core.State
	emitter *events.Emitter
	idx     *indexer.Indexer
	exec    *vm.Executor
}

func newEnv(t *testing.T, admin string) *testEnv {
	t.Helper()
	state := testutil.NewStateDB()
	if err := state.SetLotteryConfig(&core.LotteryConfig{
		Admin:      admin,
		FeeRateBps: 1000,
		MinBet:     1,
		MaxBet:     100_000,
		BetDenom:   "luck",
	}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)
	return &testEnv{
		state:   state,
		emitter: emitter,
		idx:     idx,
		exec:    vm.NewExecutor(state, emitter),
	}
}

func (e *testEnv) fund(t *testing.T, addr string, amount uint64) {
	t.Helper()
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Balance = amount
	if err := e.state.SetAccount(acc); err != nil {
		t.Fatalf("set account: %v", err)
	}
}

// runBlock executes txs in a block at the given height, mimicking what the
// consensus loop does.
func (e *testEnv) runBlock(t *testing.T, height int64, txs ...*core.Transaction) error {
	t.Helper()
	block := core.NewBlock(height, "prev", "proposer", txs)
	return e.exec.ExecuteBlock(block)
}

func (e *testEnv) balance(t *testing.T, addr string) uint64 {
	t.Helper()
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account %s: %v", addr, err)
	}
	return acc.Balance
}

// TestFullLotteryCycle drives one commit-reveal-settle cycle end to end
// through signed transactions and the executor.
func TestFullLotteryCycle(t *testing.T) {
	admin, _ := wallet.Generate()
	alice, _ := wallet.Generate()
	bob, _ := wallet.Generate()

	env := newEnv(t, admin.PubKey())
	env.fund(t, alice.PubKey(), 1_000)
	env.fund(t, bob.PubKey(), 1_000)

	// With alice as the only revealer, her seed alone determines the draw.
	winning, err := lottery.WinningNumber([]core.Participant{
		{Address: alice.PubKey(), Revealed: true, RandomSeed: "alice-seed"},
	})
	if err != nil {
		t.Fatalf("winning number: %v", err)
	}
	losing := (winning + 1) % lottery.NumberRange
	aliceNums := []uint16{winning, losing}

	// ---- commitment phase ----
	betTx, err := alice.PlaceBet(chainID, 2, aliceNums, "alice-seed", 0, 0)
	if err != nil {
		t.Fatalf("place bet tx: %v", err)
	}
	transferTx, err := bob.Transfer(chainID, alice.PubKey(), 50, 0, 0)
	if err != nil {
		t.Fatalf("transfer tx: %v", err)
	}
	if err := env.runBlock(t, 100, betTx, transferTx); err != nil {
		t.Fatalf("commit block: %v", err)
	}
	if got := env.balance(t, alice.PubKey()); got != 1_048 { // 1000 - 2 + 50
		t.Errorf("alice balance after bet: got %d want 1048", got)
	}

	// A bet in the reveal phase must fail and roll back cleanly.
	lateTx, _ := bob.PlaceBet(chainID, 1, []uint16{losing}, "bob-seed", 1, 0)
	if err := env.runBlock(t, 6_050, lateTx); err == nil {
		t.Fatal("bet during reveal phase should fail")
	}
	if got := env.balance(t, bob.PubKey()); got != 950 {
		t.Errorf("bob balance after rejected bet: got %d want 950", got)
	}

	// ---- reveal phase ----
	revealTx, err := alice.RevealRandom(chainID, aliceNums, "alice-seed", 1, 0)
	if err != nil {
		t.Fatalf("reveal tx: %v", err)
	}
	if err := env.runBlock(t, 6_100, revealTx); err != nil {
		t.Fatalf("reveal block: %v", err)
	}

	// ---- settlement phase ----
	settleTx, err := bob.SettleLottery(chainID, 1, 0)
	if err != nil {
		t.Fatalf("settle tx: %v", err)
	}
	if err := env.runBlock(t, 9_100, settleTx); err != nil {
		t.Fatalf("settle block: %v", err)
	}

	sess, err := env.state.GetCurrentSession()
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !sess.Settled {
		t.Error("session should be settled")
	}
	result, err := env.state.GetResult(sess.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.WinningNumber != winning {
		t.Errorf("winning number: got %d want %d", result.WinningNumber, winning)
	}
	if len(result.Winners) != 1 {
		t.Fatalf("winners: got %d want 1", len(result.Winners))
	}
	// Pool of 2 at 10% -> fee 0, reward pool 2, single winner below the
	// fixed prize gets the whole pool.
	if result.Winners[0].RewardAmount != 2 {
		t.Errorf("reward: got %d want 2", result.Winners[0].RewardAmount)
	}
	if got := env.balance(t, alice.PubKey()); got != 1_050 { // 1048 + 2
		t.Errorf("alice balance after settle: got %d want 1050", got)
	}

	// The indexer picked the settlement up through events.
	history, err := env.idx.GetHistory(0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0] != sess.ID {
		t.Errorf("history: got %v want [%s]", history, sess.ID)
	}
	wins, err := env.idx.GetWinsByPlayer(alice.PubKey())
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if len(wins) != 1 {
		t.Errorf("alice wins: got %v want one entry", wins)
	}

	stats, err := env.state.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSessions != 1 {
		t.Errorf("total sessions: got %d want 1", stats.TotalSessions)
	}
	if stats.TotalParticipants != 1 {
		t.Errorf("total participants: got %d want 1", stats.TotalParticipants)
	}
}

// runThreePlayerCycle drives a cycle where three players bet 1000 tickets
// each on the same number and all reveal. Returns the settled result and the
// draw outcome.
func runThreePlayerCycle(t *testing.T, pick func(winning uint16) uint16) (*core.LotteryResult, uint16) {
	t.Helper()
	admin, _ := wallet.Generate()
	players := make([]*wallet.Wallet, 3)
	seeds := []string{"seed-a", "seed-b", "seed-c"}
	env := newEnv(t, admin.PubKey())

	synthetic := make([]core.Participant, 3)
	for i := range players {
		players[i], _ = wallet.Generate()
		env.fund(t, players[i].PubKey(), 1_000)
		synthetic[i] = core.Participant{
			Address:    players[i].PubKey(),
			Revealed:   true,
			RandomSeed: seeds[i],
		}
	}
	winning, err := lottery.WinningNumber(synthetic)
	if err != nil {
		t.Fatalf("winning number: %v", err)
	}

	choice := pick(winning)
	nums := make([]uint16, 1_000)
	for i := range nums {
		nums[i] = choice
	}

	for i, p := range players {
		betTx, err := p.PlaceBet(chainID, 1_000, nums, seeds[i], 0, 0)
		if err != nil {
			t.Fatalf("bet tx: %v", err)
		}
		if err := env.runBlock(t, int64(100+i), betTx); err != nil {
			t.Fatalf("bet block: %v", err)
		}
	}
	for i, p := range players {
		revealTx, err := p.RevealRandom(chainID, nums, seeds[i], 1, 0)
		if err != nil {
			t.Fatalf("reveal tx: %v", err)
		}
		if err := env.runBlock(t, int64(6_100+i), revealTx); err != nil {
			t.Fatalf("reveal block: %v", err)
		}
	}
	settleTx, err := players[0].SettleLottery(chainID, 2, 0)
	if err != nil {
		t.Fatalf("settle tx: %v", err)
	}
	if err := env.runBlock(t, 9_100, settleTx); err != nil {
		t.Fatalf("settle block: %v", err)
	}

	result, err := env.state.GetResult("session_100")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	return result, winning
}

// TestThreePlayerCommonNumber bets 3000 tickets on one shared number and
// checks the per-ticket winner fan-out against the draw.
func TestThreePlayerCommonNumber(t *testing.T) {
	result, winning := runThreePlayerCycle(t, func(w uint16) uint16 { return w })

	if result.TotalPool != 3_000 {
		t.Errorf("pool: got %d want 3000", result.TotalPool)
	}
	if result.ServiceFee != 300 {
		t.Errorf("fee: got %d want 300", result.ServiceFee)
	}
	if result.RewardPool != 2_700 {
		t.Errorf("reward pool: got %d want 2700", result.RewardPool)
	}
	if result.WinningNumber != winning {
		t.Errorf("winning number: got %d want %d", result.WinningNumber, winning)
	}
	// One winner record per matching ticket: 1000 tickets x 3 players.
	if len(result.Winners) != 3_000 {
		t.Fatalf("winners: got %d want 3000", len(result.Winners))
	}
	// 3000 winners push the split below one token each; the floor is zero
	// and the whole reward pool stays in the pool account.
	for _, w := range result.Winners {
		if w.RewardAmount != 0 {
			t.Fatalf("reward: got %d want 0", w.RewardAmount)
		}
	}
}

// TestThreePlayerMissedNumber is the same cycle with the shared number moved
// off the draw: nobody wins.
func TestThreePlayerMissedNumber(t *testing.T) {
	result, _ := runThreePlayerCycle(t, func(w uint16) uint16 {
		return (w + 1) % lottery.NumberRange
	})

	if len(result.Winners) != 0 {
		t.Errorf("winners: got %d want 0", len(result.Winners))
	}
	if result.RewardPool != 2_700 {
		t.Errorf("reward pool: got %d want 2700", result.RewardPool)
	}
}

// TestAdminFeeWithdrawal settles a fee-bearing cycle and withdraws the
// accrued fee to the admin account.
func TestAdminFeeWithdrawal(t *testing.T) {
	admin, _ := wallet.Generate()
	alice, _ := wallet.Generate()

	env := newEnv(t, admin.PubKey())
	env.fund(t, alice.PubKey(), 10_000)

	winning, err := lottery.WinningNumber([]core.Participant{
		{Address: alice.PubKey(), Revealed: true, RandomSeed: "seed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	losing := (winning + 1) % lottery.NumberRange

	nums := make([]uint16, 100)
	for i := range nums {
		nums[i] = losing
	}
	nums[0] = winning

	betTx, _ := alice.PlaceBet(chainID, 100, nums, "seed", 0, 0)
	if err := env.runBlock(t, 10, betTx); err != nil {
		t.Fatalf("bet: %v", err)
	}
	revealTx, _ := alice.RevealRandom(chainID, nums, "seed", 1, 0)
	if err := env.runBlock(t, 6_010, revealTx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	settleTx, _ := alice.SettleLottery(chainID, 2, 0)
	if err := env.runBlock(t, 9_010, settleTx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Pool 100 at 10% -> fee 10, reward pool 90, one winner paid 90.
	result, err := env.state.GetResult("session_10")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.ServiceFee != 10 {
		t.Errorf("service fee: got %d want 10", result.ServiceFee)
	}
	if result.Winners[0].RewardAmount != 90 {
		t.Errorf("reward: got %d want 90", result.Winners[0].RewardAmount)
	}

	withdrawTx, _ := admin.WithdrawFee(chainID, 10, 0, 0)
	if err := env.runBlock(t, 9_011, withdrawTx); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := env.balance(t, admin.PubKey()); got != 10 {
		t.Errorf("admin balance: got %d want 10", got)
	}
	if got := env.balance(t, lottery.PoolAccount); got != 0 {
		t.Errorf("pool balance: got %d want 0", got)
	}

	// A non-admin withdrawal attempt fails and changes nothing.
	badTx, _ := alice.WithdrawFee(chainID, 1, 3, 0)
	if err := env.runBlock(t, 9_012, badTx); err == nil {
		t.Fatal("non-admin withdraw should fail")
	}
}
