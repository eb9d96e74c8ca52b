package lottery

import (
	"crypto/sha256"
	"math/big"

	"github.com/ddlab/luckchain/core"
)

// NumberRange is the modulus of the winning-number space (tickets are 0..999).
const NumberRange = 1000

// seedValue maps a revealed seed to a 128-bit value: the first 16 bytes of
// its SHA-256 digest interpreted as a little-endian integer.
func seedValue(seed string) *big.Int {
	sum := sha256.Sum256([]byte(seed))
	le := make([]byte, 16)
	for i := 0; i < 16; i++ {
		le[i] = sum[15-i] // big.Int wants big-endian
	}
	return new(big.Int).SetBytes(le)
}

// combine folds n contributed values into a single result modulo k by summing
// them. Once all other contributions are fixed, no single contributor can
// predict or steer the remainder; replaying the same multiset yields the same
// result, which auditing depends on.
func combine(values []*big.Int, k int64) (int64, error) {
	if len(values) == 0 || k <= 0 {
		return 0, ErrRandomGenerationFailed
	}
	mod := big.NewInt(k)
	acc := new(big.Int)
	for _, v := range values {
		acc.Add(acc, v)
		acc.Mod(acc, mod)
	}
	return acc.Int64(), nil
}

// WinningNumber derives the cycle's winning number from all revealed seeds.
// Participants who never revealed contribute nothing; if nobody revealed the
// cycle cannot produce randomness and ErrNoParticipants is returned.
func WinningNumber(participants []core.Participant) (uint16, error) {
	if len(participants) == 0 {
		return 0, ErrNoParticipants
	}
	var values []*big.Int
	for i := range participants {
		p := &participants[i]
		if p.Revealed && p.RandomSeed != "" {
			values = append(values, seedValue(p.RandomSeed))
		}
	}
	if len(values) == 0 {
		return 0, ErrNoParticipants
	}
	n, err := combine(values, NumberRange)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
