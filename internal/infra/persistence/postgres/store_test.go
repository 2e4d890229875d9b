package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"scodata/internal/infra/persistence/postgres/testutil"
	"scodata/internal/metadata/core"
	"scodata/internal/metadata/metadatatest"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, conn
}

func TestStubStoreContract(t *testing.T) {
	metadatatest.Run(t, func(t *testing.T) core.Store {
		s, _ := newStubStore(t)
		return s
	})
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := newStubStore(t)
	var sawTable bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS DOCUMENTS") {
			sawTable = true
		}
	}
	if !sawTable {
		t.Fatalf("expected documents DDL, got %v", conn.Execs)
	}
}

func TestNewStoreSurfacesPingAndDDLErrors(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
	db2, conn2 := testutil.NewStubDB()
	restore2 := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db2, nil })
	defer restore2()
	conn2.FailExec = true
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ddl") {
		t.Fatalf("expected ddl error, got %v", err)
	}
}

func TestContainment(t *testing.T) {
	got, err := containment(core.Filter{"properties.name": "run", "state": "FAILED"})
	if err != nil {
		t.Fatalf("containment: %v", err)
	}
	if got != `{"properties":{"name":"run"},"state":"FAILED"}` {
		t.Fatalf("unexpected containment %s", got)
	}
	if got, _ := containment(nil); got != "" {
		t.Fatalf("expected empty containment")
	}
}

// TestPostgresContract runs against a real server when SCODATA_POSTGRES_TEST_DSN is set.
func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("SCODATA_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("SCODATA_POSTGRES_TEST_DSN not set")
	}
	metadatatest.Run(t, func(t *testing.T) core.Store {
		s, err := NewStore(context.Background(), dsn)
		if err != nil {
			t.Skipf("postgres unavailable: %v", err)
		}
		if _, err := s.DB().Exec(`DELETE FROM documents`); err != nil {
			t.Fatalf("reset: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
