package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strength is the coarse bucket derived from a policy score.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthGood   Strength = "good"
	StrengthStrong Strength = "strong"
)

const maxScore = 5

// Result is the outcome of Policy.Validate.
type Result struct {
	Valid    bool
	Strength Strength
	Score    int
	Feedback []string
}

// Policy scores and validates passwords. The zero value is not usable;
// start from DefaultPolicy.
type Policy struct {
	MinLength   int
	MaxLength   int
	MinScore    int
	LongLength  int
	CommonWords []string
	Sequences   []string
}

// DefaultPolicy returns the policy used for registration, change and reset.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:  8,
		MaxLength:  128,
		MinScore:   3,
		LongLength: 12,
		CommonWords: []string{
			"password", "passw0rd", "123456", "12345678", "qwerty", "letmein",
			"welcome", "admin", "login", "monkey", "dragon", "master",
			"abc123", "iloveyou", "sunshine", "football", "baseball",
			"princess", "trustno1", "secret", "changeme",
		},
		Sequences: []string{
			"0123456789",
			"abcdefghijklmnopqrstuvwxyz",
			"qwertyuiop",
			"asdfghjkl",
			"zxcvbnm",
		},
	}
}

type classes struct {
	lower, upper, digit, special bool
}

func (c classes) all() bool { return c.lower && c.upper && c.digit && c.special }

func classify(pw string) classes {
	var c classes
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsDigit(r):
			c.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			c.special = true
		}
	}
	return c
}

// Validate scores pw and reports whether it is acceptable. A password
// missing any of the four character classes is invalid whatever its score.
func (p Policy) Validate(pw string) Result {
	n := utf8.RuneCountInString(pw)
	if n < p.MinLength {
		return Result{Strength: StrengthWeak, Feedback: []string{fmt.Sprintf("Password must be at least %d characters long", p.MinLength)}}
	}
	if n > p.MaxLength {
		return Result{Strength: StrengthWeak, Feedback: []string{fmt.Sprintf("Password must be at most %d characters long", p.MaxLength)}}
	}

	var (
		score    int
		feedback []string
	)

	c := classify(pw)
	for _, check := range []struct {
		ok  bool
		msg string
	}{
		{c.lower, "Add lowercase letters"},
		{c.upper, "Add uppercase letters"},
		{c.digit, "Add numbers"},
		{c.special, "Add special characters"},
	} {
		if check.ok {
			score++
		} else {
			feedback = append(feedback, check.msg)
		}
	}

	if n >= p.LongLength {
		score++
	} else {
		feedback = append(feedback, fmt.Sprintf("Use at least %d characters for a stronger password", p.LongLength))
	}

	lower := strings.ToLower(pw)
	if p.containsCommonWord(lower) {
		score -= 2
		feedback = append(feedback, "Avoid common words and patterns")
	}
	if hasRepeatedRun(pw, 3) {
		score--
		feedback = append(feedback, "Avoid repeating the same character")
	}
	if p.containsSequence(lower) {
		score--
		feedback = append(feedback, "Avoid sequential characters")
	}

	score = min(max(score, 0), maxScore)

	return Result{
		Valid:    c.all() && score >= p.MinScore,
		Strength: strengthFor(score),
		Score:    score,
		Feedback: feedback,
	}
}

func strengthFor(score int) Strength {
	switch {
	case score >= 4:
		return StrengthStrong
	case score >= 3:
		return StrengthGood
	case score >= 2:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

func (p Policy) containsCommonWord(lower string) bool {
	for _, w := range p.CommonWords {
		if w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (p Policy) containsSequence(lower string) bool {
	for _, seq := range p.Sequences {
		for i := 0; i+3 <= len(seq); i++ {
			if strings.Contains(lower, seq[i:i+3]) {
				return true
			}
		}
	}
	return false
}

func hasRepeatedRun(pw string, n int) bool {
	var (
		prev rune
		run  int
	)
	for i, r := range []rune(pw) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
