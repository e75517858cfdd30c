package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

const (
	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a uniformly distributed code in [100000, 999999] using crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// wellFormed reports whether code is exactly CodeLength ASCII digits.
func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// codesEqual performs a constant-time comparison.
func codesEqual(entered, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(entered), []byte(stored)) == 1
}
