package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// MinSessionTokenBytes is the smallest entropy accepted for session tokens.
const MinSessionTokenBytes = 16

// NewSessionToken returns size random bytes from crypto/rand encoded as
// unpadded base64url. The value is opaque; nothing in this module parses it.
func NewSessionToken(size int) (string, error) {
	if size < MinSessionTokenBytes {
		return "", fmt.Errorf("session token size %d below minimum %d", size, MinSessionTokenBytes)
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewOTP returns a uniformly random numeric code with the given number of digits.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode binds code to challengeID and hashes the pair, so a stored digest
// cannot be replayed against a different challenge.
func HashCode(challengeID, code string) [32]byte {
	return sha256.Sum256([]byte(challengeID + ":" + code))
}

// CodeMatches compares a candidate code against a stored digest in constant time.
func CodeMatches(challengeID, code string, digest []byte) bool {
	sum := HashCode(challengeID, code)
	return subtle.ConstantTimeCompare(sum[:], digest) == 1
}
