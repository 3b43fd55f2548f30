package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps the input fed to the KDF when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

const decoyPassword = "decoy-password-never-matches"

var (
	ErrEmptyPassword   = errors.New("password: empty password")
	ErrPasswordTooLong = errors.New("password: input exceeds maximum length")
	ErrUnsupportedHash = errors.New("password: unsupported hash format")
	ErrMalformedHash   = errors.New("password: malformed hash")

	bcryptHashPrefixes = []string{"$2a$", "$2b$", "$2y$"}
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the production Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Hasher hashes new passwords with Argon2id and verifies both Argon2id and
// legacy bcrypt hashes. It is safe for concurrent use.
type Hasher struct {
	config Config
	decoy  string
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewHasher validates cfg and precomputes the decoy hash used by VerifyDummy.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Hasher{config: cfg}
	decoy, err := h.Hash(decoyPassword)
	if err != nil {
		return nil, fmt.Errorf("password: decoy hash: %w", err)
	}
	h.decoy = decoy
	return h, nil
}

// Hash returns a PHC-encoded Argon2id hash of password. The raw string bytes
// are hashed as provided, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if err := h.checkInput(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. A malformed or
// unsupported hash is an error, a mismatch is (false, nil).
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if err := h.checkInput(password); err != nil {
		return false, err
	}

	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, parsed.keyLength)
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// VerifyDummy spends one Argon2id verification against a decoy hash so that
// lookups for unknown accounts cost the same as real ones. It always
// returns false.
func (h *Hasher) VerifyDummy(password string) bool {
	if password == "" || len(password) > h.config.MaxPasswordBytes {
		password = decoyPassword + "-"
	}
	_, _ = h.Verify(password, h.decoy)
	return false
}

// NeedsUpgrade reports whether encodedHash should be replaced by a fresh
// Hash: bcrypt hashes always do, Argon2id hashes do when any cost
// parameter is weaker than the current configuration.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != parsed.keyLength, nil
}

func (h *Hasher) checkInput(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > h.config.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func isBcrypt(encodedHash string) bool {
	for _, p := range bcryptHashPrefixes {
		if strings.HasPrefix(encodedHash, p) {
			return true
		}
	}
	return false
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: invalid PHC layout", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, ErrUnsupportedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: invalid argon2 version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, ErrUnsupportedHash
	}

	memory, timeCost, parallelism, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	key, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: invalid key", ErrMalformedHash)
	}

	return &parsedPHC{
		memory:      memory,
		time:        timeCost,
		parallelism: parallelism,
		salt:        salt,
		hash:        key,
		keyLength:   uint32(len(key)),
	}, nil
}

func parseParams(part string) (memory, timeCost uint32, parallelism uint8, err error) {
	seen := 0
	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return 0, 0, 0, fmt.Errorf("%w: invalid parameter entry", ErrMalformedHash)
		}
		switch k {
		case "m":
			n, perr := strconv.ParseUint(v, 10, 32)
			if perr != nil || n < uint64(minMemoryKB) {
				return 0, 0, 0, fmt.Errorf("%w: invalid memory parameter", ErrMalformedHash)
			}
			memory = uint32(n)
		case "t":
			n, perr := strconv.ParseUint(v, 10, 32)
			if perr != nil || n < uint64(minTimeCost) {
				return 0, 0, 0, fmt.Errorf("%w: invalid time parameter", ErrMalformedHash)
			}
			timeCost = uint32(n)
		case "p":
			n, perr := strconv.ParseUint(v, 10, 8)
			if perr != nil || n < uint64(minParallelism) {
				return 0, 0, 0, fmt.Errorf("%w: invalid parallelism parameter", ErrMalformedHash)
			}
			parallelism = uint8(n)
		default:
			return 0, 0, 0, fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 || memory == 0 || timeCost == 0 || parallelism == 0 {
		return 0, 0, 0, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return memory, timeCost, parallelism, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MaxPasswordBytes < 128 {
		return errors.New("password max bytes must be >= 128")
	}
	return nil
}
