package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/tl-relay/db"
)

// SetupTestDB creates a test database connection and runs the archive
// migration. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	// Each test starts from an empty archive.
	if _, err := database.Exec(`DELETE FROM relayed_messages`); err != nil {
		database.Close()
		t.Fatalf("failed to reset archive table: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
