package lottery

import (
	"errors"
	"fmt"

	"github.com/ddlab/luckchain/core"
)

// Sentinel errors for the lottery module. Every one of these is a normal,
// expected transaction outcome: the executor rolls the tx back and the
// caller resubmits a corrected request.
var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrContractPaused           = errors.New("lottery is paused")
	ErrParticipantAlreadyExists = errors.New("participant already exists")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrAlreadyRevealed          = errors.New("random seed already revealed")
	ErrLotteryAlreadySettled    = errors.New("lottery already settled")
	ErrNoParticipants           = errors.New("no participants")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrReentrancyDetected       = errors.New("reentrancy detected")
	ErrInvalidCommitmentHash    = errors.New("invalid commitment hash")
	ErrCommitmentHashMismatch   = errors.New("commitment hash mismatch")
	ErrSessionNotFound          = errors.New("session not found")
	ErrRandomGenerationFailed   = errors.New("random generation failed")
	ErrInvalidBetDenom          = errors.New("invalid bet denomination")
)

// InvalidPhaseError reports an operation attempted outside its required phase.
type InvalidPhaseError struct {
	Expected core.Phase
	Actual   core.Phase
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid phase: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidLuckyNumbersError reports a malformed ticket list.
type InvalidLuckyNumbersError struct {
	Reason string
}

func (e *InvalidLuckyNumbersError) Error() string {
	return "invalid lucky numbers: " + e.Reason
}

// InvalidBetAmountError reports a bet outside the configured bounds.
type InvalidBetAmountError struct {
	Amount uint64
}

func (e *InvalidBetAmountError) Error() string {
	return fmt.Sprintf("invalid bet amount: %d", e.Amount)
}

// InvalidFeeRateError reports a fee rate above 100% (10000 bps).
type InvalidFeeRateError struct {
	Bps uint64
}

func (e *InvalidFeeRateError) Error() string {
	return fmt.Sprintf("invalid service fee rate: %d bps", e.Bps)
}

func invalidPhase(expected, actual core.Phase) error {
	return &InvalidPhaseError{Expected: expected, Actual: actual}
}

func invalidNumbers(reason string) error {
	return &InvalidLuckyNumbersError{Reason: reason}
}
