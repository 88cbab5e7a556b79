package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"townhall/internal/testsupport"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "townhalld.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := snapshotKey("Serving directory"); got != "serving_directory_available" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestProcessExitRunsCleanupsInReverse(t *testing.T) {
	var order []int
	p := &process{}
	for i := 1; i <= 3; i++ {
		p.onExit(func() { order = append(order, i) })
	}
	p.exit()
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Fatalf("unexpected cleanup order %v", order)
	}
}

func TestRunLeavesRunningDaemonPIDFileWhenLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Run(context.Background(), cfg, Options{LogLevel: "error"}); err == nil {
		t.Fatal("expected Run to fail while another process holds the lock")
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("pid file of the running daemon was removed: %v", err)
	}
	if strings.TrimSpace(string(data)) != "4242" {
		t.Fatalf("pid file of the running daemon was overwritten: %q", data)
	}
}
