package wallet

import (
	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/crypto"
	"github.com/ddlab/luckchain/vm/modules/lottery"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// BuildCommitment computes the sealed hash for a future reveal of the given
// numbers and seed. The caller must keep numbers and seed byte-identical
// until reveal time or the chain will reject the reveal.
func BuildCommitment(amount uint64, numbers []uint16, seed string) string {
	return lottery.Digest(amount, numbers, seed)
}

// PlaceBet creates a signed place_bet transaction carrying the commitment to
// numbers and seed. amount is both the stake and the ticket count.
func (w *Wallet) PlaceBet(chainID string, amount uint64, numbers []uint16, seed string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxPlaceBet, nonce, fee, core.BetPayload{
		CommitmentHash: BuildCommitment(amount, numbers, seed),
		Amount:         amount,
	})
}

// RevealRandom creates a signed reveal_random transaction opening a prior
// commitment.
func (w *Wallet) RevealRandom(chainID string, numbers []uint16, seed string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxRevealRandom, nonce, fee, core.RevealPayload{
		LuckyNumbers: numbers,
		RandomSeed:   seed,
	})
}

// SettleLottery creates a signed settle_lottery transaction. Anyone may send
// it during the settlement phase.
func (w *Wallet) SettleLottery(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxSettleLottery, nonce, fee, core.SettlePayload{})
}

// WithdrawFee creates a signed withdraw_fee transaction. Only the configured
// admin's signature will be accepted on-chain.
func (w *Wallet) WithdrawFee(chainID string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWithdrawFee, nonce, fee, core.WithdrawFeePayload{Amount: amount})
}
