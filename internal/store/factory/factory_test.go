package factory

import (
	"path/filepath"
	"testing"
)

func TestNewFromDSNSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	for _, dsn := range []string{path, "sqlite://" + path, "file://" + path} {
		s, err := NewFromDSN(dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", dsn, err)
		}
		_ = s.Close()
	}
}

func TestNewFromDSNRejectsUnknownScheme(t *testing.T) {
	if _, err := NewFromDSN("mysql://user:pw@localhost:3306/sentinel"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestNewFromDSNPostgres(t *testing.T) {
	// sql.Open with pgx does not dial; construction must succeed.
	s, err := NewFromDSN("postgres://user:pw@localhost:5432/sentinel")
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	_ = s.Close()
}

func TestNewFromDSNEmpty(t *testing.T) {
	if _, err := NewFromDSN("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
