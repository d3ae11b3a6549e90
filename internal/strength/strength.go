// Package strength scores candidate passwords.
//
// The score is loosely based on NIST SP 800-63 (without the dictionary bonus):
// the first character is worth 4 bits, characters 2..8 are worth 2 bits each,
// 9..20 are worth 1.5 bits each and every character after that 1 bit.
// Mixing upper and lower case and using a non-letter each add 3 bits.
package strength

import (
	"regexp"
	"unicode/utf8"
)

// MinEntropy is the lowest acceptable score.
const MinEntropy = 25.0

var (
	reNonAlpha = regexp.MustCompile(`(?i)[^a-z]`)
	reUpper    = regexp.MustCompile(`[A-Z]`)
	reLower    = regexp.MustCompile(`[a-z]`)
)

func WeighedEntropy(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}

	entropy := 4.0
	if reNonAlpha.MatchString(s) {
		entropy += 3
	}
	if reUpper.MatchString(s) && reLower.MatchString(s) {
		entropy += 3
	}

	entropy += 2 * float64(clamp(min(n, 8)-1))
	entropy += 1.5 * float64(clamp(min(n, 20)-8))
	entropy += float64(clamp(n - 20))

	return entropy
}

func IsWeak(s string) bool {
	return WeighedEntropy(s) < MinEntropy
}

func IsStrong(s string) bool {
	return !IsWeak(s)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
