// Command authcore is the operator CLI for the authentication core: schema
// migrations, session sweeping, token housekeeping, password tooling and
// configuration reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/pgstore"
)

// Env holds the process-level settings that are not part of authcore.Config.
type Env struct {
	DatabaseURL       string `env:"DATABASE_URL" env-description:"PostgreSQL connection string"`
	RedisAddr         string `env:"REDIS_ADDR" env-default:"localhost:6379" env-description:"Redis address"`
	RedisPassword     string `env:"REDIS_PASSWORD" env-description:"Redis password"`
	RedisDB           int    `env:"REDIS_DB" env-default:"0"`
	SentryDSN         string `env:"SENTRY_DSN" env-description:"Sentry DSN; empty disables error reporting"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
	LogLevel          string `env:"LOG_LEVEL" env-default:"info"`

	SMTPHost     string `env:"SMTP_HOST" env-description:"SMTP host; empty logs notifications instead of sending them"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLS      bool   `env:"SMTP_TLS" env-default:"true"`
	SMTPFrom     string `env:"SMTP_FROM"`
	ProductName  string `env:"PRODUCT_NAME" env-default:"HR Portal"`
	BaseURL      string `env:"BASE_URL" env-default:"http://localhost:8080"`
}

const usage = `usage: authcore <command> [flags]

commands:
  migrate         apply database migrations
  sweep           remove expired sessions (once, or continuously with -loop)
  purge           delete expired tokens and old login attempts
  genpass         print a generated password
  check-password  score a password read from stdin
  roles           print the role table
  report          print the effective security configuration
  env             describe the supported environment variables
`

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var env Env
	if err := cleanenv.ReadEnv(&env); err != nil {
		fmt.Fprintf(stderr, "read environment: %v\n", err)
		return 1
	}
	logger := newLogger(stderr, env.LogLevel)
	slog.SetDefault(logger)

	if env.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              env.SentryDSN,
			Environment:      env.SentryEnvironment,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("sentry init failed", "err", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "migrate":
		err = runMigrate(ctx, env, logger)
	case "sweep":
		err = runSweep(ctx, env, logger, rest)
	case "purge":
		err = runPurge(ctx, env, logger, rest, stdout)
	case "genpass":
		err = runGenpass(rest, stdout)
	case "check-password":
		err = runCheckPassword(stdin, stdout)
	case "roles":
		err = runRoles(stdout)
	case "report":
		err = runReport(ctx, env, logger, stdout)
	case "env":
		fmt.Fprintln(stdout, authcore.ConfigUsage())
		desc, _ := cleanenv.GetDescription(&env, nil)
		fmt.Fprintln(stdout, desc)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		logger.Error(cmd+" failed", "err", err)
		if env.SentryDSN != "" {
			sentry.CaptureException(err)
		}
		return 1
	}
	return 0
}

// exitError ends the command with a specific status and no error log.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func runGenpass(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("genpass", flag.ContinueOnError)
	length := fs.Int("length", 16, "password length")
	count := fs.Int("n", 1, "number of passwords")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2}
	}

	cfg, err := authcore.LoadConfig()
	if err != nil {
		return err
	}
	policy := cfg.PasswordPolicy()
	for i := 0; i < *count; i++ {
		pw, err := policy.Generate(*length)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, pw)
	}
	return nil
}

func runCheckPassword(stdin io.Reader, stdout io.Writer) error {
	raw, err := io.ReadAll(io.LimitReader(stdin, 4096))
	if err != nil {
		return err
	}
	pw := strings.TrimRight(string(raw), "\r\n")

	cfg, err := authcore.LoadConfig()
	if err != nil {
		return err
	}
	res := cfg.PasswordPolicy().Validate(pw)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Valid {
		return exitError{code: 3}
	}
	return nil
}

func runRoles(stdout io.Writer) error {
	roles, err := permission.NewRoleRegistry(permission.DefaultTable())
	if err != nil {
		return err
	}
	for _, role := range roles.Roles() {
		level, _ := roles.Level(role)
		fmt.Fprintf(stdout, "%s (level %d)\n", role, level)
		fmt.Fprintf(stdout, "  assigns: %s\n", strings.Join(roles.AssignableRoles(role), ", "))
		for _, perm := range roles.EffectivePermissions(role) {
			fmt.Fprintf(stdout, "  - %s\n", perm)
		}
	}
	return nil
}

func runMigrate(ctx context.Context, env Env, logger *slog.Logger) error {
	store, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := pgstore.MigrationNames()
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "files", len(names))
	return nil
}

func runSweep(ctx context.Context, env Env, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	loop := fs.Bool("loop", false, "keep sweeping on the configured interval until interrupted")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2}
	}

	rt, err := newRuntime(ctx, env, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if *loop {
		logger.Info("session sweeper started", "interval", rt.config.SweepInterval)
		rt.engine.RunSessionSweeper(ctx)
		return nil
	}

	n, err := rt.engine.SweepSessions(ctx)
	if err != nil {
		return err
	}
	logger.Info("sessions swept", "removed", n)
	return nil
}

func runPurge(ctx context.Context, env Env, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	retention := fs.Duration("attempt-retention", 90*24*time.Hour, "keep login attempts newer than this")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2}
	}

	store, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	tokens, err := store.DeleteExpiredTokens(ctx, now)
	if err != nil {
		return err
	}
	attempts, err := store.DeleteAttemptsBefore(ctx, now.Add(-*retention))
	if err != nil {
		return err
	}
	logger.Info("purge complete", "tokens", tokens, "attempts", attempts)
	fmt.Fprintf(stdout, "tokens=%d attempts=%d\n", tokens, attempts)
	return nil
}

func runReport(ctx context.Context, env Env, logger *slog.Logger, stdout io.Writer) error {
	rt, err := newRuntime(ctx, env, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rt.engine.SecurityReport())
}
