package auth

import (
	"crypto/rand"
	"fmt"
	"io"
)

// CodeAlphabet is the character set for generated codes. Visually confusable
// characters (I, O, 0, 1) are excluded so codes survive being read aloud or
// copied by hand.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultCodeLength is the length of applicant unique codes.
const DefaultCodeLength = 10

// GenerateCode returns a random code of the given length drawn from
// CodeAlphabet. Each byte from the CSPRNG is reduced modulo the alphabet size;
// the small bias this introduces is acceptable for a human-facing code.
// Uniqueness across all generated codes is not guaranteed here; callers that
// need a globally unique code must check for collisions and retry.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	random := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, random); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	code := make([]byte, length)
	for i, b := range random {
		code[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}

	return string(code), nil
}
