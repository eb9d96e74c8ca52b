package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ddlab/luckchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxPlaceBet      TxType = "place_bet"
	TxRevealRandom  TxType = "reveal_random"
	TxSettleLottery TxType = "settle_lottery"
	TxUpdateConfig  TxType = "update_config"
	TxSetPaused     TxType = "set_paused"
	TxWithdrawFee   TxType = "withdraw_fee"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// BetPayload places a sealed bet during the commitment phase. Amount tokens
// buy exactly Amount tickets; the hash seals the chosen numbers and seed.
type BetPayload struct {
	CommitmentHash string `json:"commitment_hash"` // 64 hex chars
	Amount         uint64 `json:"amount"`
}

// RevealPayload discloses the numbers and seed committed to earlier.
type RevealPayload struct {
	LuckyNumbers []uint16 `json:"lucky_numbers"` // each 0..999, len == bet amount
	RandomSeed   string   `json:"random_seed"`
}

// SettlePayload triggers settlement of the current session. Anyone may send
// it once the settlement phase is reached.
type SettlePayload struct{}

// UpdateConfigPayload mutates lottery parameters. Nil fields are left
// unchanged. Admin only.
type UpdateConfigPayload struct {
	FeeRateBps     *uint64 `json:"fee_rate_bps,omitempty"`
	MinBet         *uint64 `json:"min_bet,omitempty"`
	MaxBet         *uint64 `json:"max_bet,omitempty"`
	BetDenom       *string `json:"bet_denom,omitempty"`
	PauseRequested *bool   `json:"pause_requested,omitempty"`
}

// SetPausedPayload pauses or unpauses the lottery immediately. Admin only.
type SetPausedPayload struct {
	Paused bool `json:"paused"`
}

// WithdrawFeePayload moves accrued service fees from the pool account to the
// admin. Admin only.
type WithdrawFeePayload struct {
	Amount uint64 `json:"amount"`
}
