// Command licensectl runs administrative tasks against the configured
// license store without going through the HTTP API.
package main

import (
	"bufio"
	"context"
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

	"golang.org/x/crypto/bcrypt"

	"licensehub/internal/app"
	"licensehub/internal/config"
	"licensehub/internal/exporter"
	"licensehub/internal/infrastructure"
	"licensehub/internal/license"
	"licensehub/internal/security"
)

const usage = `usage: licensectl <command> [flags]

commands:
  migrate         open the configured store and apply pending migrations
  hash-password   print a bcrypt hash for LICENSED_SECURITY_ADMIN_PASSWORD_HASH
  token           issue an admin API token
  add             create a license
  export          write every license to a CSV or XLSX file
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	// Every log line of one invocation shares a trace id.
	ctx = infrastructure.EnsureTraceID(ctx)

	var err error
	switch args[0] {
	case "migrate":
		err = migrate(ctx, stdout, stderr)
	case "hash-password":
		err = hashPassword(args[1:], stdin, stdout, stderr)
	case "token":
		err = issueToken(stdout)
	case "add":
		err = addLicense(ctx, args[1:], stdout, stderr)
	case "export":
		err = export(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case err != nil:
		fmt.Fprintf(stderr, "licensectl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, infrastructure.NewLogger(cfg.Logging, stderr), nil
}

func migrate(ctx context.Context, stdout, stderr io.Writer) error {
	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	s, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Fprintf(stdout, "%s store is up to date\n", cfg.Store.Driver)
	return nil
}

func hashPassword(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The password is read from stdin so it stays out of shell history.
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		fmt.Fprintln(stderr, "password must be given on stdin")
		return errUsage
	}

	hash, err := security.HashPassword(password, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func issueToken(stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	issuer, err := security.NewTokenIssuer(cfg.Security.SecretKey, cfg.Security.TokenIssuer, cfg.Security.TokenTTL)
	if err != nil {
		return err
	}
	token, expires, err := issuer.Issue()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stdout, "expires %s\n", expires.UTC().Format(time.RFC3339))
	return nil
}

func addLicense(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", "", "license key (required)")
	keyType := fs.String("type", string(license.KeyTypeRestricted), "restricted | unrestricted")
	subscription := fs.String("subscription", string(license.SubscriptionMonth), `subscription type, e.g. "1 Month" or Days`)
	days := fs.Int("days", 0, "length for the Days subscription")
	hours := fs.Int("hours", 0, "length for the Hours subscription")
	support := fs.String("support", "", "support contact name")
	multi := fs.Bool("multi-device", false, "mark the license as multi device")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		fmt.Fprintln(stderr, "-key is required")
		return errUsage
	}

	kt, err := license.ParseKeyType(*keyType)
	if err != nil {
		return err
	}
	st, err := license.ParseSubscriptionType(*subscription)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	s, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	engine := license.NewEngine(s, license.SystemClock{},
		license.WithMaxAttempts(cfg.Engine.MaxAttempts),
		license.WithBackoff(cfg.Engine.Backoff),
		license.WithFreeTrialSpan(cfg.Engine.FreeTrialSpan),
		license.WithLogger(logger))

	created, err := engine.CreateLicense(ctx, license.CreateParams{
		Key:              *key,
		KeyType:          kt,
		SubscriptionType: st,
		Days:             *days,
		Hours:            *hours,
		SupportName:      *support,
		MultiDevice:      *multi,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created license %d, expires %s\n", created.ID, created.ExpirationDate.UTC().Format(time.RFC3339))
	return nil
}

func export(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	formatFlag := fs.String("format", "csv", "csv | xlsx")
	out := fs.String("out", "", "output file (defaults to a timestamped name in the working directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := exporter.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	s, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	licenses, err := s.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	path := *out
	if path == "" {
		path = format.Filename(now)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := exporter.Write(f, format, licenses, now); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "exported %d licenses to %s\n", len(licenses), path)
	return nil
}
