package password

import (
	"errors"

	"github.com/MrEthical07/authcore/internal/random"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()-_=+[]{};:,.?"

	// DefaultGenerateLength is used when Generate is called with length <= 0.
	DefaultGenerateLength = 16

	generateAttempts = 16
)

// ErrGenerateLength is returned for lengths that cannot hold all four classes.
var ErrGenerateLength = errors.New("password: generated length must be between 4 and the policy maximum")

// Generate returns a random password of the given length containing every
// character class. Candidates that the policy would reject are drawn again.
func (p Policy) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultGenerateLength
	}
	if length < 4 || length > p.MaxLength {
		return "", ErrGenerateLength
	}

	var last string
	for i := 0; i < generateAttempts; i++ {
		pw, err := generate(length)
		if err != nil {
			return "", err
		}
		if length < p.MinLength || p.Validate(pw).Valid {
			return pw, nil
		}
		last = pw
	}
	return last, nil
}

func generate(length int) (string, error) {
	all := lowerChars + upperChars + digitChars + specialChars
	out := make([]byte, 0, length)

	for _, set := range []string{lowerChars, upperChars, digitChars, specialChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := random.Int(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := random.Int(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}
