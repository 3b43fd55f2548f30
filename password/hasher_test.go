package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}
	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("wrong password Verify = %v, %v", ok, err)
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-Secret1!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := h.Verify("legacy-Secret1!", string(legacy))
	if err != nil || !ok {
		t.Fatalf("bcrypt Verify = %v, %v", ok, err)
	}
	ok, err = h.Verify("nope", string(legacy))
	if err != nil || ok {
		t.Fatalf("bcrypt mismatch Verify = %v, %v", ok, err)
	}

	upgrade, err := h.NeedsUpgrade(string(legacy))
	if err != nil || !upgrade {
		t.Fatalf("bcrypt hashes must need upgrade, got %v, %v", upgrade, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t, fastConfig())
	hash, err := weak.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	if up, err := newTestHasher(t, stronger).NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade for weaker params, got %v, %v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade for same params, got %v, %v", up, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	if _, err := h.Verify("password", "not-a-phc-hash"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}

	hash, _ := h.Hash("version-test")
	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := h.Verify("version-test", wrongVersion); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
}

func TestHashInputBounds(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("e", DefaultMaxPasswordBytes)); err != nil {
		t.Fatalf("exact max must be accepted: %v", err)
	}
}

func TestVerifyDummyNeverMatches(t *testing.T) {
	h := newTestHasher(t, fastConfig())
	for _, pw := range []string{"", decoyPassword, "anything"} {
		if h.VerifyDummy(pw) {
			t.Fatalf("VerifyDummy(%q) returned true", pw)
		}
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected weak memory to be rejected")
	}
}
