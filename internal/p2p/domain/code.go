package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeDigits is the length of verification codes shown to customers.
const codeDigits = 6

var codeMax = big.NewInt(1_000_000)

// NewVerificationCode returns a random numeric code. Leading zeros are
// preserved so the code is always codeDigits long.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
