// Package testdb locates the database used by integration tests and resets
// it between tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/phrazzld/mediaforge-api/internal/redact"
)

// Environment variables checked for a test database, in order.
const (
	EnvTestDBURL   = "MEDIAFORGE_TEST_DB_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

// ciVars are set by the common CI providers.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// IsCI reports whether the process runs under a CI provider.
func IsCI() bool {
	for _, name := range ciVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range []string{EnvTestDBURL, EnvDatabaseURL} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// RequireURL returns the test database URL. Without one the test is skipped
// locally and failed under CI, where a missing database is a setup error.
func RequireURL(t testing.TB) string {
	t.Helper()
	dsn := DatabaseURL()
	if dsn != "" {
		t.Logf("using test database %s", redact.String(dsn))
		return dsn
	}
	if IsCI() {
		t.Fatalf("no test database configured: set %s or %s", EnvTestDBURL, EnvDatabaseURL)
	}
	t.Skipf("%s not set, skipping database test", EnvTestDBURL)
	return ""
}

// Truncate empties tables so each test starts from a clean state.
func Truncate(t testing.TB, db *sql.DB, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	query := fmt.Sprintf("TRUNCATE %s", strings.Join(tables, ", "))
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("truncate %v: %v", tables, err)
	}
}
