package testutil

import (
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestTime is the reference instant used by repository tests.
func TestTime() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// RunConcurrent starts every fn at once and fails the test on the first error.
func RunConcurrent(t TestingTB, funcs ...func() error) {
	t.Helper()
	var g errgroup.Group
	for _, fn := range funcs {
		g.Go(fn)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent operation failed: %v", err)
	}
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// unavailable skips, or fails when TEST_REQUIRE_<what> or TEST_REQUIRE_INFRA is set.
func unavailable(t TestingTB, what string, err error) {
	t.Helper()
	if envBool("TEST_REQUIRE_"+what) || envBool("TEST_REQUIRE_INFRA") {
		t.Fatalf("%s not available: %v", strings.ToLower(what), err)
	}
	t.Skipf("%s not available: %v", strings.ToLower(what), err)
}
