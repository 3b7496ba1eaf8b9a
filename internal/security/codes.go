package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const activationCodeBytes = 64

// NewActivationCode returns 64 random bytes hex-encoded, safe to embed in a URL.
func NewActivationCode() (string, error) {
	b := make([]byte, activationCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewRecoveryCode returns a numeric code of exactly length digits. Leading zeros
// are kept.
func NewRecoveryCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid recovery code length %d", length)
	}

	var sb strings.Builder
	sb.Grow(length)

	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("error generating recovery code: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}

	return sb.String(), nil
}

// CodesEqual is an exact, case-sensitive comparison that does not leak timing.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
