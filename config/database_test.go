package config

import (
	"strings"
	"testing"
)

func TestDatabaseDSN_SetsReadCommittedOnEveryConnection(t *testing.T) {
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "booking")

	dsn := databaseDSN()
	if !strings.HasPrefix(dsn, "root:pw@tcp(127.0.0.1:3306)/booking?") {
		t.Fatalf("unexpected dsn prefix: %s", dsn)
	}
	// Pool connections all come up at READ COMMITTED; a session-level SET
	// would only reach one of them.
	if !strings.Contains(dsn, "transaction_isolation=%27READ-COMMITTED%27") {
		t.Fatalf("dsn missing isolation level: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("dsn missing parseTime: %s", dsn)
	}
}

func TestDatabaseDSN_CloudSQLUnixSocket(t *testing.T) {
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "/cloudsql/project:region:instance")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "booking")

	dsn := databaseDSN()
	if !strings.Contains(dsn, "@unix(/cloudsql/project:region:instance)/booking") {
		t.Fatalf("unexpected unix socket dsn: %s", dsn)
	}
}
