package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/bootstrap"
	"github.com/kaamsathi/kaamsathi-api/internal/devseed"
	"github.com/kaamsathi/kaamsathi-api/internal/migrate"
)

type migrateOptions struct {
	Timeout time.Duration
	DryRun  bool
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	Seed        bool
	AllowRemote bool
}

type dbSeedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	var opts migrateOptions
	fs := newFlagSet("migrate")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List pending migrations without applying them")
	if err := parseTimed(fs, &opts.Timeout, defaultMigrationTimeout, args); err != nil {
		return migrateOptions{}, err
	}
	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	var opts dbResetOptions
	fs := newFlagSet("db-reset")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt (ignored for remote hosts)")
	fs.BoolVar(&opts.Seed, "seed", false, "Seed development data after the reset")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Permit a database host that does not look local")
	if err := parseTimed(fs, &opts.Timeout, defaultMigrationTimeout, args); err != nil {
		return dbResetOptions{}, err
	}
	return opts, nil
}

func parseDBSeedFlags(args []string) (dbSeedOptions, error) {
	var opts dbSeedOptions
	fs := newFlagSet("db-seed")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Permit a database host that does not look local")
	if err := parseTimed(fs, &opts.Timeout, defaultMigrationTimeout, args); err != nil {
		return dbSeedOptions{}, err
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if opts.DryRun {
			pending, err := migrate.Pending(ctx, db)
			if err != nil {
				return fmt.Errorf("list pending migrations: %w", err)
			}
			return printPending(cmdCtx.Out, pending)
		}
		return applyMigrations(ctx, cmdCtx, db)
	})
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}
	pg := cmdCtx.Config.Postgres
	remote, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "drop and recreate the public schema")
	if err != nil {
		return err
	}

	c := confirmation{
		Action:  "reset database schema",
		Target:  fmt.Sprintf("database %q on %s:%d", pg.Name, pg.Host, pg.Port),
		Warning: "WARNING: this drops every marketplace table, job and application in the configured database.",
		Skip:    opts.Yes && !remote,
	}
	if remote {
		c.Warning += fmt.Sprintf(" Host %q appears to be remote.", pg.Host)
	}
	if err := cmdCtx.Prompt.confirm(c); err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", pg.Name)
		for _, stmt := range resetStatements(pg.User) {
			cmdCtx.Logger.Debug("reset statement", "sql", stmt)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", stmt, err)
			}
		}
		if err := applyMigrations(ctx, cmdCtx, db); err != nil {
			return err
		}
		if opts.Seed {
			return seed(ctx, cmdCtx, db)
		}
		return nil
	})
}

func runDBSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBSeedFlags(args)
	if err != nil {
		return err
	}
	if _, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "seed development data"); err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if err := applyMigrations(ctx, cmdCtx, db); err != nil {
			return err
		}
		return seed(ctx, cmdCtx, db)
	})
}

func applyMigrations(ctx context.Context, cmdCtx *commandContext, db *sql.DB) error {
	start := time.Now()
	if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	cmdCtx.Logger.Info("migrations applied", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func seed(ctx context.Context, cmdCtx *commandContext, db *sql.DB) error {
	svcs, err := devseed.NewServices(db, cmdCtx.Config.Marketplace)
	if err != nil {
		return fmt.Errorf("build seed services: %w", err)
	}
	if err := devseed.Run(ctx, svcs, cmdCtx.Logger); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	cmdCtx.Logger.Info("development data seeded")
	return nil
}

func withDatabase(cmdCtx *commandContext, timeout time.Duration, f func(context.Context, *sql.DB) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	infra, err := bootstrap.ConnectInfra(&cmdCtx.Config, cmdCtx.Logger, bootstrap.Needs{DB: true})
	if err != nil {
		return err
	}
	defer closeInfra(cmdCtx, infra)
	return f(ctx, infra.DB)
}

func printPending(w io.Writer, pending []string) error {
	if len(pending) == 0 {
		return writef(w, "schema is up to date\n")
	}
	if err := writef(w, "%d pending migration(s):\n", len(pending)); err != nil {
		return err
	}
	for _, v := range pending {
		if err := writef(w, "  %s\n", v); err != nil {
			return err
		}
	}
	return nil
}

// resetStatements recreates the public schema and regrants it to dbUser.
func resetStatements(dbUser string) []string {
	stmts := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user := strings.TrimSpace(dbUser); user != "" && !strings.EqualFold(user, "public") {
		stmts = append(stmts, "GRANT ALL ON SCHEMA public TO "+pgx.Identifier{user}.Sanitize())
	}
	return stmts
}

// guardRemoteHost refuses a non-local database host unless allowed, and then
// asks the operator to type the host name back. It reports whether the host is remote.
func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf("refusing to %s on potentially remote database host %q; re-run with --allow-remote if intended", action, host)
	}
	return true, cmdCtx.Prompt.confirmRemote(host, action)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	switch {
	case h == "", h == "localhost", strings.HasSuffix(h, ".local"):
		return false
	}
	if addr, err := netip.ParseAddr(h); err == nil {
		return !addr.IsLoopback()
	}
	return true
}
