// Package errors maps arbitrary errors to short, low-cardinality class names
// for metric tags and operator alerts.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Classify returns a snake_case class for err, or "" for nil.
//
// Known failure modes get stable names ("timeout", "canceled", "network",
// "postgres_23505", "cache_miss"); anything else is named after the
// innermost wrapped type, e.g. "json_syntaxerror".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, redis.Nil):
		return "cache_miss"
	case goerrors.As(err, &pgErr):
		return "postgres_" + strings.ToLower(pgErr.Code)
	case goerrors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}
