// Package random produces opaque tokens and codes from crypto/rand.
//
// There is deliberately no fallback source: every function returns the
// crypto/rand error instead.
package random

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// TokenSize is the raw byte length of session and single-use tokens.
	TokenSize = 32

	backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ErrEntropy is returned when the system CSPRNG cannot be read.
var ErrEntropy = errors.New("secure random source unavailable")

// CheckEntropy performs a read from crypto/rand and fails when it errors or
// returns an all-zero block.
func CheckEntropy() error {
	var probe [32]byte
	if _, err := rand.Read(probe[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	var zero [32]byte
	if probe == zero {
		return ErrEntropy
	}
	return nil
}

// Token returns a base64url (unpadded) encoding of TokenSize random bytes.
func Token() (string, error) {
	var raw [TokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 digest used to index a token at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidTokenFormat reports whether s could have been produced by Token.
func ValidTokenFormat(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == TokenSize
}

// Int returns a uniform integer in [0, n).
func Int(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("random: n must be > 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return int(v.Int64()), nil
}

// BackupCode returns a code of length characters from an unambiguous
// alphabet, split in two groups by a dash.
func BackupCode(length int) (string, error) {
	if length < 6 || length%2 != 0 {
		return "", errors.New("random: backup code length must be even and >= 6")
	}

	var b strings.Builder
	b.Grow(length + 1)
	for i := 0; i < length; i++ {
		if i == length/2 {
			b.WriteByte('-')
		}
		n, err := Int(len(backupAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(backupAlphabet[n])
	}
	return b.String(), nil
}

// NormalizeBackupCode uppercases a user supplied code and strips separators.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
