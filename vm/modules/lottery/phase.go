package lottery

import "github.com/ddlab/luckchain/core"

// Phase windows on the fixed block cycle. Heights [0,6000) of each cycle
// accept commitments, [6000,9000) reveals, [9000,10000) settlement.
const (
	CycleLength   int64 = 10000
	commitmentEnd int64 = 6000
	revealEnd     int64 = 9000
)

// PhaseFromHeight maps a block height to its lottery phase. Pure and total:
// every non-negative height lands in exactly one phase.
func PhaseFromHeight(height int64) core.Phase {
	switch offset := height % CycleLength; {
	case offset < commitmentEnd:
		return core.PhaseCommitment
	case offset < revealEnd:
		return core.PhaseReveal
	default:
		return core.PhaseSettlement
	}
}

// CycleOffset returns the position of height within its cycle.
func CycleOffset(height int64) int64 {
	return height % CycleLength
}

// IsCycleStart reports whether height is the first block of a new cycle.
// A requested pause takes effect at this boundary.
func IsCycleStart(height int64) bool {
	return height%CycleLength == 0
}

// RemainingBlocks returns how many blocks are left in the current phase.
func RemainingBlocks(height int64) int64 {
	offset := height % CycleLength
	switch PhaseFromHeight(height) {
	case core.PhaseCommitment:
		return commitmentEnd - offset
	case core.PhaseReveal:
		return revealEnd - offset
	default:
		return CycleLength - offset
	}
}

// phaseCompat is the session-compatibility lattice as an explicit transition
// table: a session created in phase A admits bets and reveals while the chain
// is in phase B iff phaseCompat[{A, B}]. Settlement is gated only by the
// clock, not by this table. Kept as a table rather than conditionals so the
// lattice stays auditable.
var phaseCompat = map[[2]core.Phase]bool{
	{core.PhaseCommitment, core.PhaseCommitment}: true,
	{core.PhaseCommitment, core.PhaseReveal}:     true,
	{core.PhaseReveal, core.PhaseReveal}:         true,
	{core.PhaseReveal, core.PhaseSettlement}:     true,
	{core.PhaseSettlement, core.PhaseSettlement}: true,
}

// Compatible reports whether a session created in sessionPhase still admits
// bets and reveals while the chain is in currentPhase.
func Compatible(sessionPhase, currentPhase core.Phase) bool {
	return phaseCompat[[2]core.Phase{sessionPhase, currentPhase}]
}

// PhaseInfo is a point-in-time snapshot of the phase clock, served by the
// query surface.
type PhaseInfo struct {
	Phase     core.Phase `json:"phase"`
	Height    int64      `json:"height"`
	Offset    int64      `json:"offset"`
	Remaining int64      `json:"remaining_blocks"`
}

// InfoAt builds a PhaseInfo for the given height.
func InfoAt(height int64) PhaseInfo {
	return PhaseInfo{
		Phase:     PhaseFromHeight(height),
		Height:    height,
		Offset:    CycleOffset(height),
		Remaining: RemainingBlocks(height),
	}
}
