package core

import (
	"strings"
	"unicode"
)

// LoveScore computes a deterministic 0-100 compatibility score from two
// names. Same inputs always give the same score; order does not matter.
func LoveScore(name1, name2 string) (int, string) {
	a, b := normalizeName(name1), normalizeName(name2)
	if b < a {
		a, b = b, a
	}

	combined := a + "+" + b
	sum := 0
	for i, r := range combined {
		sum += int(r) * (i + 1)
	}
	score := sum % 101

	return score, loveMessage(score)
}

func normalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func loveMessage(score int) string {
	switch {
	case score >= 80:
		return "A match made in heaven! Don't let this one get away."
	case score >= 60:
		return "Great potential! There's a real spark here."
	case score >= 40:
		return "There's something there. Worth a first date to find out."
	case score >= 20:
		return "Opposites attract... sometimes. Proceed with caution."
	default:
		return "The stars say no, but who listens to stars anyway?"
	}
}
