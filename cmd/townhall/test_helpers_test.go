package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/daemon"
	"townhall/internal/encoding"
	"townhall/internal/logging"
	"townhall/internal/metrics"
	"townhall/internal/queue"
	"townhall/internal/storage"
	"townhall/internal/testsupport"
	"townhall/internal/videos"
	"townhall/internal/worker"
)

type unavailableEncoder struct{}

func (unavailableEncoder) IsAvailable(context.Context) bool { return false }

func (unavailableEncoder) Encode(context.Context, string, string) (videos.Outputs, error) {
	return videos.Outputs{}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("TOWNHALL_TOKEN", "")

	configPath := filepath.Join(homeDir, ".config", "townhall", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// serve starts an HTTP API over the env's databases and returns its URL.
func (e *cliTestEnv) serve(t *testing.T) string {
	t.Helper()
	store := testsupport.MustOpenStore(t, e.cfg)
	videoStore := testsupport.MustOpenVideos(t, e.cfg)
	m := metrics.New()
	logger := logging.NewNop()
	w := worker.New(e.cfg, store, worker.Dependencies{
		Encoder:  unavailableEncoder{},
		Fallback: encoding.NewCopier(storage.NewLocal(e.cfg), logger),
		Videos:   videoStore,
		Metrics:  m,
	}, logger)
	d, err := daemon.New(e.cfg, store, videoStore, w, api.NewQueueService(store, videoStore, m), m, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func (e *cliTestEnv) openStore(t *testing.T) *queue.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runOffline(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, _, err := runCLI(t, append([]string{"--offline"}, args...), env.configPath)
	if err != nil {
		t.Fatalf("townhall %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nraw_dir = %q\nserving_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[videos]\ndriver = %q\ndsn = %q\n\n[queue]\nretry_base_delay_seconds = 0\nretry_max_delay_seconds = 0\n",
		cfg.Paths.DataDir,
		cfg.Paths.RawDir,
		cfg.Paths.ServingDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Videos.Driver,
		cfg.Videos.DSN,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
