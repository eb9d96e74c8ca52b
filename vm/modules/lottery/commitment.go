package lottery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxNumber is the largest playable ticket number.
	MaxNumber = 999
	// MaxTicketsPerBet caps how many tickets one bet may carry, regardless of
	// the configured max bet.
	MaxTicketsPerBet = 1_000_000
	// MaxPerNumber caps how often a single value may appear in one reveal,
	// bounding any one participant's exposure to a single number.
	MaxPerNumber = 1000
)

// ValidateHashFormat checks that h is a 64-character hex string (a 256-bit
// digest). Content cannot be verified at commit time: the numbers and seed
// are still secret.
func ValidateHashFormat(h string) error {
	if len(h) != 64 {
		return ErrInvalidCommitmentHash
	}
	for _, c := range h {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return ErrInvalidCommitmentHash
		}
	}
	return nil
}

// Digest computes the canonical commitment digest:
//
//	hex(sha256("{amount}|{n1,n2,...,nk}|{seed}"))
//
// Numbers are base-10, comma-joined, the hex is lowercase. The client and
// the chain must reproduce this string bit for bit: any deviation in
// separator, ordering or formatting fails verification.
func Digest(amount uint64, numbers []uint16, seed string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(amount, 10))
	b.WriteByte('|')
	for i, n := range numbers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}
	b.WriteByte('|')
	b.WriteString(seed)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment recomputes the digest from the revealed data and compares
// it byte-for-byte against the stored hash.
func VerifyCommitment(amount uint64, numbers []uint16, seed, expected string) error {
	if Digest(amount, numbers, seed) != expected {
		return ErrCommitmentHashMismatch
	}
	return nil
}

// ValidateNumbers checks the basic shape of a ticket list: non-empty, within
// the global ticket cap, every value in [0, MaxNumber].
func ValidateNumbers(numbers []uint16) error {
	if len(numbers) == 0 {
		return invalidNumbers("must have at least 1 number")
	}
	if len(numbers) > MaxTicketsPerBet {
		return invalidNumbers(fmt.Sprintf("cannot have more than %d tickets", MaxTicketsPerBet))
	}
	for _, n := range numbers {
		if n > MaxNumber {
			return invalidNumbers("numbers must be 0-999")
		}
	}
	return nil
}

// ValidateNumberCounts enforces the concentration cap: no single value may
// appear more than MaxPerNumber times in one reveal.
func ValidateNumberCounts(numbers []uint16) error {
	counts := make(map[uint16]int)
	for _, n := range numbers {
		counts[n]++
		if counts[n] > MaxPerNumber {
			return invalidNumbers(fmt.Sprintf(
				"number %d appears more than %d times", n, MaxPerNumber))
		}
	}
	return nil
}
