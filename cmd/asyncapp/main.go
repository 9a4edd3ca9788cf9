// Package main implements asyncapp, a single-process task runtime that runs
// init, continuous, periodic and cleanup tasks, publishes their status through
// a messenger and optionally serves it over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/asyncapp/internal/auth"
	"github.com/phrazzld/asyncapp/internal/config"
	"github.com/phrazzld/asyncapp/internal/platform/logger"
	"github.com/phrazzld/asyncapp/internal/task"
	"github.com/spf13/pflag"
)

// commandLine holds the flags that select what main does, as opposed to the
// config overrides registered by config.RegisterFlags.
type commandLine struct {
	configFile   string
	migrate      string
	tokenSubject string
	flags        *pflag.FlagSet
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("asyncapp: %v", err)
	}
}

// run parses args and executes the selected command, writing its result to
// stdout.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cl, err := parseCommandLine(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadWith(config.Options{File: cl.configFile, Flags: cl.flags})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.App)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("configuration loaded",
		"messenger", cfg.Messenger.Backend,
		"server_enabled", cfg.Server.Enabled,
		"demo_enabled", cfg.Demo.Enabled)

	switch {
	case cl.migrate != "":
		return handleMigrations(ctx, cfg, cl.migrate, l)
	case cl.tokenSubject != "":
		return printToken(ctx, cfg, cl.tokenSubject, stdout)
	}

	return runApplication(ctx, cfg, l, stdout)
}

func parseCommandLine(args []string) (*commandLine, error) {
	cl := &commandLine{flags: pflag.NewFlagSet("asyncapp", pflag.ContinueOnError)}

	cl.flags.StringVarP(&cl.configFile, "config", "c", "", "path to a TOML config file")
	cl.flags.StringVar(&cl.migrate, "migrate", "",
		"run a migration command (up, down, reset, status, version) and exit")
	cl.flags.StringVar(&cl.tokenSubject, "token", "",
		"print an operator token for the given subject and exit")
	config.RegisterFlags(cl.flags)

	if err := cl.flags.Parse(args); err != nil {
		return nil, err
	}
	return cl, nil
}

// runApplication runs every configured task until they all return. The first
// SIGINT or SIGTERM asks tasks to stop, the second cancels them.
func runApplication(ctx context.Context, cfg *config.Config, l *slog.Logger, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.cleanup()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go watchSignals(ctx, signals, a, cancel)

	records, err := a.Run(ctx)
	if err != nil {
		return err
	}
	return writeSummary(stdout, records)
}

func watchSignals(ctx context.Context, signals <-chan os.Signal, a *application, cancel context.CancelFunc) {
	select {
	case sig := <-signals:
		// Once the run is over only the server linger is left to interrupt
		if _, err := a.runtime.Results(); err == nil {
			a.logger.Info("stopping status server", "signal", sig.String())
			cancel()
			return
		}
		a.runtime.Exit(fmt.Sprintf("received %s", sig))
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-signals:
		a.logger.Warn("cancelling running tasks", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}
}

// Summary is the JSON document printed once a run is over.
type Summary struct {
	Results     map[string][]any    `json:"results"`
	Exceptions  map[string][]string `json:"exceptions"`
	Unqueryable []string            `json:"unqueryable"`
}

func writeSummary(w io.Writer, records []task.Record) error {
	results, exceptions, unqueryable := task.Summarize(records)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Summary{
		Results:     results,
		Exceptions:  exceptions,
		Unqueryable: unqueryable,
	}); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func printToken(ctx context.Context, cfg *config.Config, subject string, w io.Writer) error {
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("%w: server.jwt_secret is not set", auth.ErrWeakSecret)
	}

	tokenService, err := auth.NewTokenService(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	token, err := tokenService.GenerateToken(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
