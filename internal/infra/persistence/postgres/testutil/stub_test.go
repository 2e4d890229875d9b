package testutil

import (
	"context"
	"testing"
)

func TestStubDBUnderstandsDocumentQueries(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()

	if _, err := db.ExecContext(ctx, "INSERT INTO documents(collection,id,payload) VALUES($1,$2,$3) ON CONFLICT(collection,id) DO UPDATE SET payload=EXCLUDED.payload", "c", "a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO documents(collection,id,payload) VALUES($1,$2,$3) ON CONFLICT(collection,id) DO UPDATE SET payload=EXCLUDED.payload", "c", "b", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO documents(collection,id,payload) VALUES($1,$2,$3) ON CONFLICT(collection,id) DO UPDATE SET payload=EXCLUDED.payload", "c", "a", []byte(`{"v":3}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(conn.Tables["documents"]) != 2 {
		t.Fatalf("expected upsert to replace, got %v", conn.Tables["documents"])
	}

	rows, err := db.QueryContext(ctx, "SELECT seq, payload FROM documents WHERE collection=$1 AND seq>$2 ORDER BY seq LIMIT $3", "c", int64(0), 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var n int
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if seq != 1 || payload != `{"v":3}` {
			t.Fatalf("unexpected row %d %s", seq, payload)
		}
		n++
	}
	_ = rows.Close()
	if n != 1 {
		t.Fatalf("expected limit to apply, got %d rows", n)
	}

	res, err := db.ExecContext(ctx, "DELETE FROM documents WHERE collection=$1 AND id=$2", "c", "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if affected, _ := res.RowsAffected(); affected != 1 {
		t.Fatalf("expected one row deleted, got %d", affected)
	}
	if len(conn.Execs) != 4 {
		t.Fatalf("expected execs to be recorded, got %v", conn.Execs)
	}
}
