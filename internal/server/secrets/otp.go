package secrets

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPLength is the number of decimal digits in a passcode.
const OTPLength = 6

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns OTPLength uniformly random digits, zero-padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
