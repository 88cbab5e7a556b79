package videos

import "testing"

func TestRebind(t *testing.T) {
	query := "UPDATE videos SET a = ?, b = ? WHERE video_id = ?"
	if got := sqliteDialect.rebind(query); got != query {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
	want := "UPDATE videos SET a = $1, b = $2 WHERE video_id = $3"
	if got := postgresDialect.rebind(query); got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}
