// Command kaamsathi-admin runs operator tasks against the marketplace
// database and cache: migrations, resets, seeding, reconciliation and
// cache inspection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	Prompt *prompter
}

type command struct {
	name    string
	summary string
	run     func(*commandContext, []string) error
}

func commandTable() []command {
	cmds := []command{
		{"migrate", "Apply pending database migrations", runMigrations},
		{"db-reset", "Drop the public schema, re-run migrations and optionally seed", runDBReset},
		{"db-seed", "Apply migrations and seed development accounts and jobs", runDBSeed},
		{"reconcile", "Run one reconciler pass (expire jobs, recount capacity, purge notifications)", runReconcile},
		{"cache-keys", "List cached job documents, view markers and unread counts", runListCacheKeys},
		{"cache-clear", "Delete cached entries from Redis", runClearCache},
	}
	slices.SortFunc(cmds, func(a, b command) int { return strings.Compare(a.name, b.name) })
	return cmds
}

func lookupCommand(name string) (command, bool) {
	cmds := commandTable()
	i := slices.IndexFunc(cmds, func(c command) bool { return c.name == name })
	if i < 0 {
		return command{}, false
	}
	return cmds[i], true
}

func main() {
	os.Exit(run(os.Args[1:])) //nolint:forbidigo // exit status is the CLI contract
}

func run(args []string) int {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"), true)

	if len(args) == 0 {
		_ = printUsage(os.Stdout)
		return 2
	}
	cmd, ok := lookupCommand(args[0])
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", args[0])
		_ = printUsage(os.Stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		Prompt: newPrompter(os.Stdin, os.Stderr),
	}
	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		logger.Error("command failed", "command", cmd.name, "error", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: kaamsathi-admin <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	for _, c := range commandTable() {
		if err := writef(w, "  %-16s %s\n", c.name, c.summary); err != nil {
			return err
		}
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// parseTimed registers --timeout on fs, parses args and rejects a non-positive timeout.
func parseTimed(fs *flag.FlagSet, timeout *time.Duration, def time.Duration, args []string) error {
	fs.DurationVar(timeout, "timeout", def, "Maximum time the command may run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func closeInfra(cmdCtx *commandContext, infra *bootstrap.Infra) {
	if err := infra.Close(); err != nil {
		cmdCtx.Logger.Warn("close connections failed", "error", err)
	}
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
