package core

// Account holds a participant's token balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Phase is one of the three lottery cycle phases. The current phase is
// derived purely from the block height (see vm/modules/lottery).
type Phase string

const (
	PhaseCommitment Phase = "commitment"
	PhaseReveal     Phase = "reveal"
	PhaseSettlement Phase = "settlement"
)

// LotteryConfig holds the economic and admin parameters of the lottery.
// Only the admin may mutate it, and only through update_config / set_paused.
type LotteryConfig struct {
	Admin string `json:"admin"` // pubkey hex
	// FeeRateBps is the service fee in basis points (1000 = 10%). Kept as an
	// integer ratio so fee math never touches floating point.
	FeeRateBps     uint64 `json:"fee_rate_bps"`
	MinBet         uint64 `json:"min_bet"`
	MaxBet         uint64 `json:"max_bet"`
	BetDenom       string `json:"bet_denom"`
	Paused         bool   `json:"paused"`
	PauseRequested bool   `json:"pause_requested"` // pause once the current cycle completes
}

// Participant is a bettor's record inside a Session. Lucky numbers and the
// seed stay empty until the reveal phase; after a successful reveal the
// record is never mutated again.
type Participant struct {
	Address        string   `json:"address"` // pubkey hex
	BetAmount      uint64   `json:"bet_amount"`
	LuckyNumbers   []uint16 `json:"lucky_numbers"` // one ticket per token bet, each 0..999
	RandomSeed     string   `json:"random_seed,omitempty"`
	Revealed       bool     `json:"revealed"`
	CommitmentHash string   `json:"commitment_hash"`
	BetTime        int64    `json:"bet_time"`
	RevealTime     int64    `json:"reveal_time,omitempty"`
}

// Commitment is the sealed pledge stored at bet time. SessionID records the
// cycle it was made for so a later cycle can supersede a stale entry.
type Commitment struct {
	Participant string `json:"participant"` // pubkey hex
	Hash        string `json:"hash"`        // 64 hex chars, sha256 of the canonical reveal string
	BetAmount   uint64 `json:"bet_amount"`
	SessionID   string `json:"session_id"`
	SubmittedAt int64  `json:"submitted_at"`
}

// Session is one lottery cycle's mutable ledger. Phase is the phase at
// creation time; settlement freezes the whole struct.
type Session struct {
	ID            string        `json:"id"`
	Phase         Phase         `json:"phase"`
	TotalPool     uint64        `json:"total_pool"`
	ServiceFee    uint64        `json:"service_fee"`
	Participants  []Participant `json:"participants"`
	CreatedHeight int64         `json:"created_height"`
	WinningNumber *uint16       `json:"winning_number,omitempty"`
	Settled       bool          `json:"settled"`
}

// Winner is one matching ticket. A participant with k matching tickets
// produces k records, each level 1 with MatchCount 1.
type Winner struct {
	Address      string `json:"address"`
	Level        uint8  `json:"level"`
	MatchCount   uint32 `json:"match_count"`
	RewardAmount uint64 `json:"reward_amount"`
}

// LotteryResult is the immutable archive of a settled session.
type LotteryResult struct {
	SessionID     string   `json:"session_id"`
	WinningNumber uint16   `json:"winning_number"`
	TotalPool     uint64   `json:"total_pool"`
	ServiceFee    uint64   `json:"service_fee"`
	RewardPool    uint64   `json:"reward_pool"`
	Winners       []Winner `json:"winners"`
	SettledAt     int64    `json:"settled_at"`
	SettledHeight int64    `json:"settled_height"`
}

// Stats holds monotonically increasing aggregate counters, updated on every
// bet and on every settlement.
type Stats struct {
	TotalSessions     uint64 `json:"total_sessions"`
	TotalParticipants uint64 `json:"total_participants"`
	TotalPool         uint64 `json:"total_pool"`
	TotalServiceFee   uint64 `json:"total_service_fee"`
	TotalRewards      uint64 `json:"total_rewards"`
	LastUpdated       int64  `json:"last_updated"`
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Lottery config singleton
	GetLotteryConfig() (*LotteryConfig, error)
	SetLotteryConfig(cfg *LotteryConfig) error

	// Current session singleton. GetCurrentSession returns ErrNotFound when
	// no cycle has been opened yet.
	GetCurrentSession() (*Session, error)
	SetCurrentSession(s *Session) error

	// Commitments keyed by participant pubkey hex
	GetCommitment(participant string) (*Commitment, error)
	SetCommitment(c *Commitment) error

	// Settled results keyed by session id (append-only)
	GetResult(sessionID string) (*LotteryResult, error)
	SetResult(r *LotteryResult) error

	// Stats singleton
	GetStats() (*Stats, error)
	SetStats(s *Stats) error

	// Reentrancy latch singleton. Absent means released.
	GetGuard() (bool, error)
	SetGuard(held bool) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
