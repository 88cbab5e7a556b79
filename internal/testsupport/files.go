package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

var filler = bytes.Repeat([]byte("townhall-fixture-"), 256)

// WriteFile creates path, including parents, holding size bytes of filler.
// Non-positive sizes still produce a one byte file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	src := &repeatReader{pattern: filler}
	if _, err := io.CopyN(f, src, max(size, 1)); err != nil {
		t.Fatalf("fill %s: %v", path, err)
	}
}

type repeatReader struct {
	pattern []byte
	offset  int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		c := copy(p[n:], r.pattern[r.offset:])
		n += c
		r.offset = (r.offset + c) % len(r.pattern)
	}
	return n, nil
}

// WriteScript writes body under a /bin/sh shebang as dir/name, mode 0755,
// and returns the full path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}
