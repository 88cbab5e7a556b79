package worker_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/encoding"
	"townhall/internal/metrics"
	"townhall/internal/queue"
	"townhall/internal/services"
	"townhall/internal/storage"
	"townhall/internal/testsupport"
	"townhall/internal/videos"
	"townhall/internal/worker"
)

type fakeEncoder struct {
	mu        sync.Mutex
	available bool
	failures  int
	err       error
	calls     int
	block     chan struct{}
	started   chan struct{}
}

func (f *fakeEncoder) IsAvailable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeEncoder) Encode(ctx context.Context, videoID, _ string) (videos.Outputs, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
		if err := ctx.Err(); err != nil {
			return videos.Outputs{}, err
		}
	}
	if f.failures < 0 || call <= f.failures {
		err := f.err
		if err == nil {
			err = errors.New("ffmpeg exited with status 1")
		}
		return videos.Outputs{}, err
	}
	return videos.Outputs{
		AdaptiveManifestURL: "/media/" + videoID + "/hls/master.m3u8",
		ProgressiveURL:      "/media/" + videoID + "/progressive.mp4",
		ThumbnailURL:        "/media/" + videoID + "/thumbnail.jpg",
	}, nil
}

func (f *fakeEncoder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type logRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, record slog.Record) error {
	r.mu.Lock()
	r.records = append(r.records, record.Clone())
	r.mu.Unlock()
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) count(level slog.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Level == level {
			n++
		}
	}
	return n
}

func (r *logRecorder) messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range r.records {
		if rec.Level == level {
			out = append(out, rec.Message)
		}
	}
	return out
}

type harness struct {
	cfg     *config.Config
	clock   *testsupport.Clock
	store   *queue.Store
	videos  *videos.Store
	encoder *fakeEncoder
	logs    *logRecorder
	worker  *worker.Worker
}

func newHarness(t *testing.T, enc *fakeEncoder, configure func(*config.Config), opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Worker.PollInterval = 1
	cfg.Worker.ShutdownTimeout = 1
	cfg.Worker.ShutdownPollInterval = 1
	cfg.Worker.HeartbeatInterval = 1
	if configure != nil {
		configure(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	clock := testsupport.NewClock(time.Now().UTC())
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	videoStore := testsupport.MustOpenVideos(t, cfg)
	logs := &logRecorder{}
	local := storage.NewLocal(cfg)

	w := worker.New(cfg, store, worker.Dependencies{
		Encoder:  enc,
		Fallback: encoding.NewCopier(local, slog.New(logs)),
		Videos:   videoStore,
		Metrics:  metrics.New(),
	}, slog.New(logs))

	h := &harness{cfg: cfg, clock: clock, store: store, videos: videoStore, encoder: enc, logs: logs, worker: w}
	t.Cleanup(w.Stop)
	return h
}

func (h *harness) enqueue(t *testing.T, videoID string) *queue.Job {
	t.Helper()
	if err := h.videos.EnsurePending(context.Background(), videoID); err != nil {
		t.Fatalf("EnsurePending: %v", err)
	}
	return testsupport.MustEnqueue(t, h.store, videoID, "uploads/"+videoID+".mp4")
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) waitForStatus(t *testing.T, id string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return nil
}

func (h *harness) record(t *testing.T, videoID string) *videos.Record {
	t.Helper()
	rec, err := h.videos.Get(context.Background(), videoID)
	if err != nil {
		t.Fatalf("videos.Get: %v", err)
	}
	if rec == nil {
		t.Fatalf("no video record for %s", videoID)
	}
	return rec
}

func TestEncoderRecoversAfterTwoFailures(t *testing.T) {
	enc := &fakeEncoder{available: true, failures: 2}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(3))
	job := h.enqueue(t, "V1")
	h.start(t)

	done := h.waitForStatus(t, job.ID, queue.StatusCompleted)
	if done.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", done.Attempts)
	}
	rec := h.record(t, "V1")
	if rec.EncodingStatus != videos.StatusReady || rec.Degraded {
		t.Fatalf("expected READY non-degraded video, got %+v", rec)
	}
	if rec.AdaptiveManifestURL != "/media/V1/hls/master.m3u8" || rec.EncodingCompletedAt == nil {
		t.Fatalf("encoded outputs not recorded: %+v", rec)
	}
}

func TestExhaustedRetriesFailTerminallyAndArePurged(t *testing.T) {
	enc := &fakeEncoder{available: true, failures: -1}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(3))
	job := h.enqueue(t, "V2")
	h.start(t)

	failed := h.waitForStatus(t, job.ID, queue.StatusFailed)
	if failed.Attempts != 3 || failed.LastError == "" {
		t.Fatalf("unexpected terminal job %+v", failed)
	}
	if rec := h.record(t, "V2"); rec.EncodingStatus != videos.StatusFailed || rec.FailureReason == "" {
		t.Fatalf("expected FAILED video record, got %+v", rec)
	}

	time.Sleep(1200 * time.Millisecond)
	if calls := enc.Calls(); calls != 3 {
		t.Fatalf("terminal job was claimed again: %d encode calls", calls)
	}

	h.clock.Advance(h.cfg.Retention() + time.Minute)
	removed, err := h.store.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged job, got %d", removed)
	}
	if gone, _ := h.store.Get(context.Background(), job.ID); gone != nil {
		t.Fatalf("job still present after cleanup: %+v", gone)
	}
}

func TestUnavailableEncoderPublishesRawBytes(t *testing.T) {
	enc := &fakeEncoder{available: false}
	h := newHarness(t, enc, nil)
	raw := filepath.Join(h.cfg.Paths.RawDir, "uploads", "V3.mp4")
	testsupport.WriteFile(t, raw, 32_000)
	job := h.enqueue(t, "V3")
	h.start(t)

	h.waitForStatus(t, job.ID, queue.StatusCompleted)
	if enc.Calls() != 0 {
		t.Fatalf("encoder must not run when unavailable, got %d calls", enc.Calls())
	}
	rec := h.record(t, "V3")
	if rec.EncodingStatus != videos.StatusReady || !rec.Degraded {
		t.Fatalf("expected READY degraded video, got %+v", rec)
	}
	if rec.ProgressiveURL != "/media/V3/original.mp4" || rec.AdaptiveManifestURL != "" {
		t.Fatalf("unexpected fallback outputs %+v", rec.Outputs)
	}

	want, _ := os.ReadFile(raw)
	got, err := os.ReadFile(filepath.Join(h.cfg.Paths.ServingDir, "V3", "original.mp4"))
	if err != nil {
		t.Fatalf("read published original: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("fallback output differs from raw upload")
	}
}

func TestFallbackFailureIsAJobFailure(t *testing.T) {
	enc := &fakeEncoder{available: false}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(1))
	job := h.enqueue(t, "V3b")
	h.start(t)

	failed := h.waitForStatus(t, job.ID, queue.StatusFailed)
	if failed.LastError == "" {
		t.Fatal("expected fallback error recorded on job")
	}
	if rec := h.record(t, "V3b"); rec.EncodingStatus != videos.StatusFailed {
		t.Fatalf("expected FAILED video, got %+v", rec)
	}
}

func TestDuplicateEnqueueIsNoop(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil)
	first := h.enqueue(t, "V4")
	second, created, err := h.store.Enqueue(context.Background(), "V4", "uploads/V4-again.mp4")
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("duplicate enqueue created a job: created=%v id=%s", created, second.ID)
	}
	h.start(t)
	h.waitForStatus(t, first.ID, queue.StatusCompleted)
	if enc.Calls() != 1 {
		t.Fatalf("expected one encode, got %d", enc.Calls())
	}
}

func TestStopTimesOutWithSingleWarning(t *testing.T) {
	enc := &fakeEncoder{available: true, block: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, enc, nil)
	job := h.enqueue(t, "V5")
	h.start(t)

	select {
	case <-enc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("encode never started")
	}
	warningsBefore := h.logs.count(slog.LevelWarn)

	begin := time.Now()
	h.worker.Stop()
	elapsed := time.Since(begin)
	if elapsed < time.Second || elapsed > 4*time.Second {
		t.Fatalf("Stop returned after %s, want about the 1s shutdown timeout", elapsed)
	}
	if got := h.logs.count(slog.LevelWarn) - warningsBefore; got != 1 {
		t.Fatalf("expected exactly one warning from Stop, got %d: %v", got, h.logs.messages(slog.LevelWarn))
	}
	if h.worker.State() != worker.StateStopped {
		t.Fatalf("expected STOPPED, got %s", h.worker.State())
	}
	if h.worker.InFlight() != 1 {
		t.Fatalf("expected the job still in flight, got %d", h.worker.InFlight())
	}

	close(enc.block)
	h.waitForStatus(t, job.ID, queue.StatusCompleted)
	if rec := h.record(t, "V5"); rec.EncodingStatus != videos.StatusReady {
		t.Fatalf("encode should finish after Stop returned, got %+v", rec)
	}
}

func TestPermanentFailureClassification(t *testing.T) {
	permanent := services.Wrap(services.ErrPermanent, "encoder", "probe", "no video stream", nil)
	cases := []struct {
		name     string
		classify bool
		attempts int
	}{
		{"classification off retries", false, 3},
		{"classification on stops", true, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := &fakeEncoder{available: true, failures: -1, err: permanent}
			h := newHarness(t, enc, func(cfg *config.Config) {
				cfg.Encoding.ClassifyPermanentFailures = tc.classify
			}, testsupport.WithMaxAttempts(3))
			job := h.enqueue(t, "V6")
			h.start(t)

			failed := h.waitForStatus(t, job.ID, queue.StatusFailed)
			if failed.Attempts != tc.attempts {
				t.Fatalf("expected %d attempts, got %d", tc.attempts, failed.Attempts)
			}
		})
	}
}

func TestEnqueueWakesWorkerBeforePollTick(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, func(cfg *config.Config) {
		cfg.Worker.PollInterval = 60
	})
	h.start(t)
	time.Sleep(100 * time.Millisecond)

	job := h.enqueue(t, "V7")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := h.store.Get(context.Background(), job.ID)
		if current != nil && current.Status == queue.StatusCompleted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("enqueue notification did not wake the worker")
}

func TestLifecycleStates(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil)
	if h.worker.State() != worker.StateStopped {
		t.Fatalf("new worker state %s", h.worker.State())
	}
	h.start(t)
	if h.worker.State() != worker.StateRunning {
		t.Fatalf("started worker state %s", h.worker.State())
	}
	if err := h.worker.Start(context.Background()); err == nil {
		t.Fatal("expected error starting a running worker")
	}
	h.worker.Stop()
	if h.worker.State() != worker.StateStopped {
		t.Fatalf("stopped worker state %s", h.worker.State())
	}
	h.worker.Stop()
	h.start(t)
	if h.worker.State() != worker.StateRunning {
		t.Fatalf("restarted worker state %s", h.worker.State())
	}
}

func TestStatusReportsLastJob(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil)
	job := h.enqueue(t, "V8")
	h.start(t)
	h.waitForStatus(t, job.ID, queue.StatusCompleted)

	status := h.worker.Status(context.Background())
	if status.State != worker.StateRunning || !status.EncoderAvailable {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.WorkerID != h.worker.ID() {
		t.Fatalf("worker id mismatch %q vs %q", status.WorkerID, h.worker.ID())
	}
	if status.LastJob == nil || status.LastJob.ID != job.ID {
		t.Fatalf("expected last job %s, got %+v", job.ID, status.LastJob)
	}
	if status.QueueStats.Completed != 1 || status.QueueStats.Total != 1 {
		t.Fatalf("unexpected queue stats %+v", status.QueueStats)
	}
}

func TestStartReclaimsExpiredLeases(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(1))
	job := h.enqueue(t, "V9")
	ctx := context.Background()
	if _, err := h.store.ClaimNext(ctx, "crashed-worker", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	h.clock.Advance(2 * time.Minute)

	h.start(t)
	failed := h.waitForStatus(t, job.ID, queue.StatusFailed)
	if failed.LastError != queue.LeaseExpiredReason {
		t.Fatalf("unexpected last error %q", failed.LastError)
	}
	if rec := h.record(t, "V9"); rec.EncodingStatus != videos.StatusFailed {
		t.Fatalf("expected lease-expired failure mirrored to video, got %+v", rec)
	}
	if enc.Calls() != 0 {
		t.Fatalf("expired job must not be encoded again, got %d calls", enc.Calls())
	}
}

func TestReenqueueAfterTerminalFailureMirrorsNewOutcome(t *testing.T) {
	enc := &fakeEncoder{available: true, failures: 1}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(1))
	svc := api.NewQueueService(h.store, h.videos, nil)
	ctx := context.Background()

	first, _, err := svc.Enqueue(ctx, "V10", "uploads/V10.mp4")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.start(t)
	h.waitForStatus(t, first.ID, queue.StatusFailed)
	if rec := h.record(t, "V10"); rec.EncodingStatus != videos.StatusFailed {
		t.Fatalf("expected FAILED video after first upload, got %+v", rec)
	}

	second, created, err := svc.Enqueue(ctx, "V10", "uploads/V10-again.mp4")
	if err != nil || !created {
		t.Fatalf("re-enqueue: created=%v err=%v", created, err)
	}
	h.waitForStatus(t, second.ID, queue.StatusCompleted)
	rec := h.record(t, "V10")
	if rec.EncodingStatus != videos.StatusReady || rec.AdaptiveManifestURL != "/media/V10/hls/master.m3u8" {
		t.Fatalf("completed job must leave the video READY, got %+v", rec)
	}

	if _, _, err := svc.Enqueue(ctx, "V10", "uploads/V10-third.mp4"); !errors.Is(err, api.ErrVideoEncoded) {
		t.Fatalf("expected ErrVideoEncoded for a READY video, got %v", err)
	}
}

func TestJobForResolvedVideoFailsWithoutPublishing(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(3))
	ctx := context.Background()
	ready := videos.Outputs{AdaptiveManifestURL: "/media/V11/hls/master.m3u8"}
	if _, err := h.videos.MarkReady(ctx, "V11", ready, false); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	job := testsupport.MustEnqueue(t, h.store, "V11", "uploads/V11.mp4")
	h.start(t)

	failed := h.waitForStatus(t, job.ID, queue.StatusFailed)
	if failed.Attempts != 1 {
		t.Fatalf("resolved video must fail without retries, got %d attempts", failed.Attempts)
	}
	if enc.Calls() != 0 {
		t.Fatalf("encoder ran for a resolved video: %d calls", enc.Calls())
	}
	if rec := h.record(t, "V11"); rec.EncodingStatus != videos.StatusReady || rec.AdaptiveManifestURL != ready.AdaptiveManifestURL {
		t.Fatalf("READY record must be untouched, got %+v", rec)
	}
}

func TestReclaimMirrorsOnlyNewlyExpiredJobs(t *testing.T) {
	enc := &fakeEncoder{available: true}
	h := newHarness(t, enc, nil, testsupport.WithMaxAttempts(1))
	svc := api.NewQueueService(h.store, h.videos, nil)
	ctx := context.Background()

	h.enqueue(t, "V12")
	if _, err := h.store.ClaimNext(ctx, "crashed-worker", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	h.clock.Advance(2 * time.Minute)
	if _, failed, err := h.store.ReclaimExpired(ctx); err != nil || len(failed) != 1 {
		t.Fatalf("ReclaimExpired: failed=%d err=%v", len(failed), err)
	}
	if _, err := h.videos.MarkFailed(ctx, "V12", queue.LeaseExpiredReason); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	crashed := h.enqueue(t, "V13")
	if _, err := h.store.ClaimNext(ctx, "crashed-worker", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	h.clock.Advance(2 * time.Minute)
	again, _, err := svc.Enqueue(ctx, "V12", "uploads/V12-again.mp4")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	h.start(t)
	h.waitForStatus(t, crashed.ID, queue.StatusFailed)
	h.waitForStatus(t, again.ID, queue.StatusCompleted)
	if rec := h.record(t, "V13"); rec.EncodingStatus != videos.StatusFailed {
		t.Fatalf("expected reclaimed video FAILED, got %+v", rec)
	}
	if rec := h.record(t, "V12"); rec.EncodingStatus != videos.StatusReady {
		t.Fatalf("older lease-expired job must not fail the re-uploaded video, got %+v", rec)
	}
}
