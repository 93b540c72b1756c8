package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the number of digits in a pairing code.
const CodeLength = 8

// GenerateCode returns a uniformly random CodeLength-digit decimal code.
// The operator compares it with the code shown on the device before approving.
func GenerateCode() (string, error) {
	var code strings.Builder
	code.Grow(CodeLength)

	ten := big.NewInt(10)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate pairing code: %w", err)
		}
		code.WriteByte(byte('0' + n.Int64()))
	}
	return code.String(), nil
}

// FormatCode splits a code into groups of four digits for display.
// Codes of any other shape are returned unchanged.
func FormatCode(code string) string {
	if len(code) != CodeLength {
		return code
	}
	return code[:4] + " " + code[4:]
}
