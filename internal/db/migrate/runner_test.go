package migrate

import (
	"os"
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", Up, nil)
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error = %q, should mention DATABASE_URL", err.Error())
	}
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"up", "down"} {
		if d, err := ParseDirection(s); err != nil || string(d) != s {
			t.Errorf("ParseDirection(%q) = %q, %v", s, d, err)
		}
	}
	for _, s := range []string{"", "UP", "Up", "sideways"} {
		if _, err := ParseDirection(s); err == nil {
			t.Errorf("ParseDirection(%q) should fail", s)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	if err := Run("postgres://localhost/test", Direction("both"), nil); err == nil {
		t.Fatal("Run with invalid direction should return error")
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://"} {
		if err := Run(dsn, Up, nil); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestRun_Live(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := Run(dsn, Up, nil); err != nil {
		t.Fatalf("up: %v", err)
	}
	// Second run is a no-op.
	if err := Run(dsn, Up, nil); err != nil {
		t.Fatalf("second up: %v", err)
	}
}
