package lottery

import (
	"fmt"
	"math/bits"

	"github.com/ddlab/luckchain/core"
)

// FixedReward is the per-winner prize paid whenever the reward pool covers it.
const FixedReward uint64 = 800

// feeDenominator converts basis points to a ratio (10000 bps = 100%).
const feeDenominator uint64 = 10000

// ServiceFee computes floor(pool * bps / 10000) in pure integer arithmetic.
// The product is taken at 128-bit width so large pools cannot overflow.
func ServiceFee(pool, bps uint64) uint64 {
	hi, lo := bits.Mul64(pool, bps)
	fee, _ := bits.Div64(hi, lo, feeDenominator)
	return fee
}

// CountMatches returns how many tickets in numbers equal the winning number.
func CountMatches(numbers []uint16, winning uint16) uint32 {
	var count uint32
	for _, n := range numbers {
		if n == winning {
			count++
		}
	}
	return count
}

// winnerLevel maps a match count to a prize tier. The system has a single
// tier: every match is top prize. Zero matches never reach this function from
// the settlement path.
func winnerLevel(matchCount uint32) (uint8, error) {
	if matchCount == 0 {
		return 0, fmt.Errorf("invalid winner level for %d matches", matchCount)
	}
	return 1, nil
}

// CalculateWinners emits one Winner record per matching ticket of every
// revealed participant: a bettor whose list contains the winning number seven
// times wins seven times. Reward amounts are filled in by DistributeRewards.
func CalculateWinners(participants []core.Participant, winning uint16) ([]core.Winner, error) {
	var winners []core.Winner
	for i := range participants {
		p := &participants[i]
		if !p.Revealed {
			continue
		}
		matches := CountMatches(p.LuckyNumbers, winning)
		if matches == 0 {
			continue
		}
		level, err := winnerLevel(matches)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < matches; j++ {
			winners = append(winners, core.Winner{
				Address:    p.Address,
				Level:      level,
				MatchCount: 1, // one record per matching ticket
			})
		}
	}
	return winners, nil
}

// DistributeRewards fills in the prize of every winner record. Total function:
//
//   - no winners: nothing to do
//   - pool >= W*FixedReward: each winner gets exactly FixedReward
//   - otherwise: each winner gets floor(pool/W); the remainder stays pooled
//
// Every winner receives an identical amount in both regimes; ordering and
// rounding never advantage any single winner.
func DistributeRewards(winners []core.Winner, rewardPool uint64) []core.Winner {
	if len(winners) == 0 {
		return winners
	}
	w := uint64(len(winners))
	perWinner := FixedReward
	if rewardPool < w*FixedReward {
		perWinner = rewardPool / w
	}
	for i := range winners {
		winners[i].RewardAmount = perWinner
	}
	return winners
}

// WinProbability returns the informational odds of the given match count.
// Diagnostic only: floating point must never reach a monetary or selection
// decision.
func WinProbability(matchCount uint32) float64 {
	if matchCount == 0 {
		return float64(NumberRange-1) / float64(NumberRange)
	}
	return 1.0 / float64(NumberRange)
}
