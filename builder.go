package authcore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
)

// Builder assembles an Engine.
//
// Builder instances are configured during initialization and used once;
// a second Build call fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store        identity.Store
	attempts     identity.AttemptLog
	sessionStore session.Store
	notifier     notify.Notifier
	auditSink    audit.Sink
	roleTable    *permission.Table
	logger       *slog.Logger
	clock        identity.Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing sessions, MFA challenges and the
// request throttle. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the identity store. It is required. When the store also
// implements identity.AttemptLog it is used for attempts as well.
func (b *Builder) WithStore(store identity.Store) *Builder {
	b.store = store
	return b
}

// WithAttemptLog sets the login attempt log explicitly.
func (b *Builder) WithAttemptLog(log identity.AttemptLog) *Builder {
	b.attempts = log
	return b
}

// WithSessionStore overrides the Redis session store.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithNotifier sets the outbound notifier. Without one, notifications are
// logged through the engine logger.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink is wrapped in the asynchronous dispatcher configured by
// Config.Audit. When auditing is disabled the sink is never called.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRoleTable replaces the default HR role hierarchy.
func (b *Builder) WithRoleTable(t permission.Table) *Builder {
	b.roleTable = &t
	return b
}

// WithLogger sets the structured logger shared by every component.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock sets the time source. Tests use identity.ManualClock.
func (b *Builder) WithClock(c identity.Clock) *Builder {
	b.clock = c
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, performs the CSPRNG self-check and
// wires every component. It fails with ErrInsecureRandom when the system
// random source is unusable and with ErrConfigInvalid for bad settings.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := random.CheckEntropy(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsecureRandom, err)
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrEngineNotReady)
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: identity store required", ErrEngineNotReady)
	}
	attempts := b.attempts
	if attempts == nil {
		if al, ok := b.store.(identity.AttemptLog); ok {
			attempts = al
		} else {
			return nil, fmt.Errorf("%w: attempt log required", ErrEngineNotReady)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = identity.SystemClock{}
	}
	metrics := NewMetrics(cfg.Metrics)

	store := boundedStore{next: b.store, timeout: cfg.Timeouts.Store}
	attemptLog := boundedAttemptLog{next: attempts, timeout: cfg.Timeouts.Store}

	// -------- ROLE REGISTRY --------
	table := permission.DefaultTable()
	if b.roleTable != nil {
		table = *b.roleTable
	}
	roles, err := permission.NewRoleRegistry(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	defaultRole, ok := identity.ParseRole(cfg.DefaultRole)
	if !ok {
		return nil, fmt.Errorf("%w: DefaultRole %q is not a known role", ErrConfigInvalid, cfg.DefaultRole)
	}
	if _, ok := roles.Level(string(defaultRole)); !ok {
		return nil, fmt.Errorf("%w: DefaultRole %q missing from role table", ErrConfigInvalid, cfg.DefaultRole)
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.hasherConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	// -------- AUDIT --------
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, audit.WithLogger(logger), audit.WithClock(clock.Now))

	var sink audit.Sink = audit.NoOpSink{}
	if dispatcher != nil {
		sink = dispatcher
	}

	// -------- SESSIONS --------
	sessionStore := b.sessionStore
	if sessionStore == nil {
		sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	sessions := session.NewManager(
		boundedSessionStore{next: sessionStore, timeout: cfg.Timeouts.Store},
		cfg.sessionConfig(),
		session.WithClock(clock),
		session.WithLogger(logger),
		session.WithOnSweep(func(n int) { metrics.Add(MetricSessionSwept, uint64(n)) }),
	)

	// -------- GUARD --------
	gc, err := cfg.guardConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	accountGuard := guard.New(store, attemptLog, gc,
		guard.WithClock(clock),
		guard.WithLogger(logger),
		guard.WithAudit(sink),
	)

	// -------- MFA --------
	mfaService := mfa.New(store, cfg.mfaConfig(),
		mfa.WithClock(clock),
		mfa.WithAudit(sink),
		mfa.WithLogger(logger),
	)

	key := []byte(cfg.Challenge.SigningKey)
	if len(key) == 0 {
		secret, err := random.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsecureRandom, err)
		}
		key = []byte(secret)
		logger.Warn("challenge signing key not configured, using a process-local key")
	}
	tickets, err := jwt.NewManager(cfg.challengeConfig(key), clock.Now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if b.notifier != nil {
		notifier = b.notifier
	}
	notifier = boundedNotifier{
		next:    notifier,
		timeout: cfg.Timeouts.Notifier,
		onFail: func(kind notify.Kind, err error) {
			metrics.Inc(MetricNotifierFailure)
			logger.Warn("notification failed", "kind", string(kind), "error", err)
		},
	}

	engine := &Engine{
		config:      cfg,
		store:       store,
		attempts:    attemptLog,
		hasher:      hasher,
		policy:      cfg.policy(),
		roles:       roles,
		sessions:    sessions,
		guard:       accountGuard,
		mfa:         mfaService,
		tickets:     tickets,
		challenges:  stores.NewChallengeStore(b.redis, cfg.Challenge.RedisPrefix, clock.Now),
		limiter:     rate.New(b.redis, cfg.rateConfig()),
		notifier:    notifier,
		audit:       dispatcher,
		sink:        sink,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
		locks:       keylock.New(),
		defaultRole: defaultRole,
	}

	b.built = true

	return engine, nil
}
