package daemonctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "townhalld.pid")

	if pid, err := ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("ReadPID(missing) = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err := ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected invalid pid error")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "townhalld.pid")
	if _, err := Stop(path, "", time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	proc := exec.Command(sleepPath, "30")
	if err := proc.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(done)
	}()

	dir := t.TempDir()
	pidPath := filepath.Join(dir, "townhalld.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(proc.Process.Pid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	result, err := Stop(pidPath, "", 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.PID != proc.Process.Pid || result.ForcedKill {
		t.Fatalf("unexpected result %+v", result)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestWaitHealthy(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	if err := WaitHealthy(context.Background(), ping, 5*time.Second); err != nil {
		t.Fatalf("WaitHealthy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 pings, got %d", calls)
	}

	err := WaitHealthy(context.Background(), func(context.Context) error { return errors.New("down") }, 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if _, err := Launch("  ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
