package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memstore"
)

// Monday, mid-morning UTC: outside the off-hours window.
var testNow = time.Date(2026, 5, 4, 10, 0, 15, 0, time.UTC)

const testPassword = "Blue-Harbor-42!x"

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) byType(eventType string) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *memstore.Store
	outbox *notify.Outbox
	clock  *identity.ManualClock
	sink   *recordingSink
	mr     *miniredis.Miniredis
	redis  *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Challenge.SigningKey = "0123456789abcdef0123456789abcdef"
	cfg.Audit.DropIfFull = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	return buildHarness(t, nil, mutate...)
}

// newFailingHarness routes account reads through a failingStore that the
// test can break at will.
func newFailingHarness(t *testing.T) (*harness, *failingStore) {
	t.Helper()
	var fs *failingStore
	h := buildHarness(t, func(ms *memstore.Store) identity.Store {
		fs = &failingStore{Store: ms}
		return fs
	})
	return h, fs
}

func buildHarness(t *testing.T, wrap func(*memstore.Store) identity.Store, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:  memstore.New(),
		outbox: notify.NewOutbox(),
		clock:  identity.NewManualClock(testNow),
		sink:   &recordingSink{},
		mr:     mr,
		redis:  rdb,
	}

	var backend identity.Store = h.store
	if wrap != nil {
		backend = wrap(h.store)
	}

	h.engine, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(backend).
		WithAttemptLog(h.store).
		WithNotifier(h.outbox).
		WithAuditSink(h.sink).
		WithClock(h.clock).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(h.engine.Close)
	return h
}

// seed stores an active, verified account with testPassword.
func (h *harness) seed(t *testing.T, id, email string, role identity.Role) identity.Account {
	t.Helper()
	hash, err := h.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := h.clock.Now()
	acc, err := h.store.CreateAccount(context.Background(), identity.Account{
		ID:                id,
		Email:             email,
		FullName:          "Test " + id,
		Role:              role,
		Active:            true,
		EmailVerified:     true,
		PasswordHash:      hash,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, identity.DefaultSecuritySettings(id, h.engine.config.Session.MaxSessions, h.engine.config.Session.DefaultTimeout))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

func (h *harness) login(t *testing.T, email, pw string) *LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), LoginInput{
		Email:    email,
		Password: pw,
		Device:   Device{IP: "10.0.0.1", UserAgent: "test"},
	})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func (h *harness) account(t *testing.T, id string) identity.Account {
	t.Helper()
	acc, err := h.store.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	return acc
}

// audited drains the dispatcher and returns the recorded events of type.
// The engine must not emit further events afterwards.
func (h *harness) audited(eventType string) []audit.Event {
	h.engine.Close()
	return h.sink.byType(eventType)
}

func (h *harness) metric(id MetricID) uint64 {
	return h.engine.metrics.Value(id)
}

// failingStore wraps a Store and fails every call once broken is set.
type failingStore struct {
	identity.Store
	mu     sync.Mutex
	broken bool
}

var errBackendDown = errors.New("backend down")

func (f *failingStore) setBroken(broken bool) {
	f.mu.Lock()
	f.broken = broken
	f.mu.Unlock()
}

func (f *failingStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errBackendDown
	}
	return nil
}

func (f *failingStore) GetAccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	if err := f.fail(); err != nil {
		return identity.Account{}, err
	}
	return f.Store.GetAccountByEmail(ctx, email)
}

func (f *failingStore) GetAccountByID(ctx context.Context, id string) (identity.Account, error) {
	if err := f.fail(); err != nil {
		return identity.Account{}, err
	}
	return f.Store.GetAccountByID(ctx, id)
}

func TestBuildRequiresDependencies(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithStore(memstore.New()).Build(); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("missing redis: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("missing store: expected ErrEngineNotReady, got %v", err)
	}
}

func TestBuildRejectsUnknownDefaultRole(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.DefaultRole = "superuser"
	_, err = New().WithConfig(cfg).WithRedis(rdb).WithStore(memstore.New()).Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithStore(memstore.New())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should fail")
	}
}

func TestLegacyBcryptHashIsUpgradedOnLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	bcryptHash := string(legacy)

	now := h.clock.Now()
	if _, err := h.store.CreateAccount(ctx, identity.Account{
		ID: "legacy", Email: "legacy@example.com", FullName: "Legacy", Role: identity.RoleUser,
		Active: true, EmailVerified: true, PasswordHash: bcryptHash, CreatedAt: now, UpdatedAt: now,
	}, identity.DefaultSecuritySettings("legacy", 5, 30*time.Minute)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	h.login(t, "legacy@example.com", testPassword)

	acc := h.account(t, "legacy")
	if stale, err := h.engine.hasher.NeedsUpgrade(acc.PasswordHash); err != nil || stale {
		t.Fatalf("hash not upgraded: stale=%v err=%v hash=%q", stale, err, acc.PasswordHash)
	}
	if h.metric(MetricPasswordRehashed) != 1 {
		t.Fatalf("expected one rehash, got %d", h.metric(MetricPasswordRehashed))
	}
	h.login(t, "legacy@example.com", testPassword)
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fs := &failingStore{Store: memstore.New(), broken: true}
	e, err := New().WithConfig(testConfig()).WithRedis(rdb).WithStore(fs).WithAttemptLog(memstore.New()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	_, err = e.Login(context.Background(), LoginInput{Email: "a@example.com", Password: testPassword})
	if !errors.Is(err, ErrStoreUnavailable) || !KindOf(err).Retryable() {
		t.Fatalf("expected retryable ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("backend failure must not look like bad credentials")
	}
}
