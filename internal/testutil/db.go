package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/kaamsathi/kaamsathi-api/internal/migrate"
)

// TestDBConfig locates the test database. Defaults target the docker-compose
// test profile on port 55432; CI sets TEST_DB_* explicitly.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* with local defaults.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     env("TEST_DB_HOST", "localhost"),
		Port:     env("TEST_DB_PORT", "55432"),
		User:     env("TEST_DB_USER", "kaamsathi"),
		Password: env("TEST_DB_PASSWORD", "kaamsathi"),
		DBName:   env("TEST_DB_NAME", "kaamsathi"),
		SSLMode:  env("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN renders a keyword/value connection string.
func (c TestDBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// open connects with an optional search_path and verifies the connection.
func (c TestDBConfig) open(searchPath string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(c.DSN())
	if err != nil {
		return nil, err
	}
	if searchPath != "" {
		cfg.RuntimeParams["search_path"] = searchPath
	}
	db := stdlib.OpenDB(*cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var probeDB = sync.OnceValue(func() error {
	db, err := DefaultTestDBConfig().open("")
	if err != nil {
		return err
	}
	return db.Close()
})

// SkipIfNoTestDB skips the test when Postgres is unreachable. The probe runs once per process.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	if err := probeDB(); err != nil {
		unavailable(t, "DB", err)
	}
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set
// each call gets its own schema; otherwise the shared database is truncated
// before and after fn.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	if envBool("TEST_DB_EPHEMERAL") {
		fn(ephemeralDB(t))
		return
	}

	db := sharedDB(t)
	defer func() {
		truncate(t, db)
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	}()
	fn(db)
}

func sharedDB(t TestingTB) *sql.DB {
	t.Helper()
	db, err := DefaultTestDBConfig().open("")
	if err != nil {
		t.Fatal("open test database:", err)
	}
	migrateDB(t, db)
	truncate(t, db)
	return db
}

// ephemeralDB migrates a fresh schema and drops it when the test ends.
func ephemeralDB(t TestingTB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()
	admin, err := cfg.open("")
	if err != nil {
		t.Fatal("open admin database:", err)
	}

	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := cfg.open(schema + ",public")
	if err != nil {
		dropSchema(t, admin, schema)
		t.Fatal("open schema database:", err)
	}
	cleanup := func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("close schema db: %v", closeErr)
		}
		dropSchema(t, admin, schema)
	}
	if tc, ok := t.(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(cleanup)
	}
	t.Logf("using ephemeral schema %s", schema)
	migrateDB(t, db)
	return db
}

func dropSchema(t TestingTB, admin *sql.DB, schema string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
		t.Logf("drop schema %s: %v", schema, err)
	}
	if err := admin.Close(); err != nil {
		t.Logf("close admin db: %v", err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func migrateDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("run migrations:", err)
	}
}

// marketplaceTables lists every table, children first.
var marketplaceTables = []string{
	"notifications",
	"messages",
	"application_messages",
	"application_status_history",
	"applications",
	"saved_jobs",
	"jobs",
	"users",
}

func truncate(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE "+strings.Join(marketplaceTables, ", ")+" CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
