package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("local defaults", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "TEST_DB_SSL_MODE"} {
			t.Setenv(k, "")
		}
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "kaamsathi",
			Password: "kaamsathi",
			DBName:   "kaamsathi",
			SSLMode:  "disable",
		}, DefaultTestDBConfig())
	})

	t.Run("ci overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
	})
}

func TestTestDBConfig_DSNParses(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5433", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	parsed, err := pgx.ParseConfig(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "db", parsed.Host)
	assert.Equal(t, uint16(5433), parsed.Port)
	assert.Equal(t, "n", parsed.Database)
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " y "} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.True(t, envBool("TESTUTIL_FLAG"), v)
	}
	for _, v := range []string{"", "0", "no", "off"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.False(t, envBool("TESTUTIL_FLAG"), v)
	}
}

type recordingTB struct {
	fatal string
	skip  string
}

func (r *recordingTB) Helper()                      {}
func (r *recordingTB) Skip(args ...any)             { r.skip = fmt.Sprint(args...) }
func (r *recordingTB) Skipf(f string, args ...any)  { r.skip = fmt.Sprintf(f, args...) }
func (r *recordingTB) Fatal(args ...any)            { r.fatal = fmt.Sprint(args...) }
func (r *recordingTB) Fatalf(f string, args ...any) { r.fatal = fmt.Sprintf(f, args...) }
func (r *recordingTB) Logf(string, ...any)          {}

func TestUnavailable(t *testing.T) {
	t.Setenv("TEST_REQUIRE_INFRA", "")
	t.Setenv("TEST_REQUIRE_REDIS", "")
	tb := &recordingTB{}
	unavailable(tb, "REDIS", errors.New("refused"))
	assert.Equal(t, "redis not available: refused", tb.skip)
	assert.Empty(t, tb.fatal)

	t.Setenv("TEST_REQUIRE_REDIS", "true")
	tb = &recordingTB{}
	unavailable(tb, "REDIS", errors.New("refused"))
	assert.Equal(t, "redis not available: refused", tb.fatal)
}

func TestRunConcurrent(t *testing.T) {
	tb := &recordingTB{}
	RunConcurrent(tb, func() error { return nil }, func() error { return nil })
	assert.Empty(t, tb.fatal)

	RunConcurrent(tb, func() error { return nil }, func() error { return errors.New("slot taken") })
	assert.Equal(t, "concurrent operation failed: slot taken", tb.fatal)
}

func TestPtr(t *testing.T) {
	assert.Equal(t, 10, *Ptr(10))
	assert.Equal(t, "x", *Ptr("x"))
}
