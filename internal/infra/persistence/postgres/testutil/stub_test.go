package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubUpsertsAndSelects(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	insert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{"one", "two"} {
		if _, err := conn.ExecContext(ctx, insert, []driver.NamedValue{{Value: "chemicals"}, {Value: payload}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if got := len(conn.Tables["state"]); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "chemicals" || dest[1] != "two" {
		t.Fatalf("row = %v", dest)
	}
}
