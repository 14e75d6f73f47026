package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ktrade/sentinel/internal/store"
	"github.com/ktrade/sentinel/internal/store/postgres"
	"github.com/ktrade/sentinel/internal/store/sqlite"
)

// NewFromDSN selects and opens the store backend for a DSN. A DSN without
// a scheme is a sqlite file path; "sqlite://" and "file://" prefixes name
// the same backend explicitly, and postgres keeps its full URL. Unknown
// schemes are rejected rather than guessed at.
func NewFromDSN(dsn string) (store.Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("store DSN is empty")
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return sqlite.New(dsn)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return postgres.New(dsn)
	case "sqlite", "file":
		return sqlite.New(rest)
	default:
		return nil, fmt.Errorf("unsupported store DSN scheme %q", scheme)
	}
}
