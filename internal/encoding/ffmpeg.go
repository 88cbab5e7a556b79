package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"townhall/internal/config"
	"townhall/internal/logging"
	"townhall/internal/services"
	"townhall/internal/videos"
)

const (
	processWaitDelay   = 5 * time.Second
	stderrTailBytes    = 4096
	thumbnailMaxHeight = 360
	defaultAudioRate   = "128k"
)

// FFmpeg encodes uploads with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegBin         string
	ffprobeBin        string
	probeTimeout      time.Duration
	timeout           time.Duration
	segmentSeconds    int
	progressiveHeight int
	thumbnailOffset   int
	renditions        []config.Rendition
	storage           Storage
	logger            *slog.Logger
}

var _ Encoder = (*FFmpeg)(nil)

// NewFFmpeg builds the encoder adapter from the [encoding] config section.
func NewFFmpeg(cfg *config.Config, storage Storage, logger *slog.Logger) *FFmpeg {
	enc := cfg.Encoding
	probeTimeout := time.Duration(enc.ProbeTimeoutSeconds) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &FFmpeg{
		ffmpegBin:         strings.TrimSpace(enc.FFmpegBinary),
		ffprobeBin:        strings.TrimSpace(enc.FFprobeBinary),
		probeTimeout:      probeTimeout,
		timeout:           cfg.EncodeTimeout(),
		segmentSeconds:    enc.SegmentSeconds,
		progressiveHeight: enc.ProgressiveHeight,
		thumbnailOffset:   enc.ThumbnailOffsetSeconds,
		renditions:        append([]config.Rendition(nil), enc.Renditions...),
		storage:           storage,
		logger:            logging.NewComponentLogger(logger, "encoder"),
	}
}

// IsAvailable runs "-version" against both binaries under the probe timeout.
func (f *FFmpeg) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()
	for _, bin := range []string{f.ffmpegBin, f.ffprobeBin} {
		if bin == "" {
			return false
		}
		cmd := commandContext(probeCtx, bin, "-version")
		if err := cmd.Run(); err != nil {
			f.logger.Debug("encoder probe failed", logging.String("binary", bin), logging.Error(err))
			return false
		}
	}
	return true
}

// Encode renders the adaptive ladder, the progressive file, and the thumbnail
// for inputLocator, then publishes them under the video's serving directory.
func (f *FFmpeg) Encode(ctx context.Context, videoID, inputLocator string) (videos.Outputs, error) {
	logger := logging.WithContext(ctx, f.logger)
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	source, err := f.storage.Resolve(inputLocator)
	if err != nil {
		return videos.Outputs{}, err
	}
	probe, err := f.probe(ctx, source)
	if err != nil {
		return videos.Outputs{}, err
	}
	sourceHeight := probe.VideoHeight()
	total := time.Duration(probe.DurationSeconds() * float64(time.Second))
	rungs := SelectLadder(f.renditions, sourceHeight)

	staged, err := f.storage.Stage(videoID)
	if err != nil {
		return videos.Outputs{}, services.Wrap(services.ErrTransient, "encoding", "stage", "create staging directory", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staged)
		}
	}()

	names := make([]string, 0, len(rungs))
	for _, rung := range rungs {
		names = append(names, rung.Name)
		if err := os.MkdirAll(filepath.Join(staged, "hls", rung.Name), 0o755); err != nil {
			return videos.Outputs{}, services.Wrap(services.ErrTransient, "encoding", "stage", "create variant directory", err)
		}
	}
	logger.Info("encode started",
		logging.String("source", source),
		logging.Int("source_height", sourceHeight),
		logging.String("ladder", strings.Join(names, ",")),
		logging.Duration("source_duration", total),
	)

	steps := []struct {
		phase string
		args  []string
	}{
		{"adaptive", hlsArgs(source, staged, rungs, probe.HasAudio(), f.segmentSeconds)},
		{"progressive", progressiveArgs(source, filepath.Join(staged, ProgressiveName), outputHeight(f.progressiveHeight, sourceHeight), probe.HasAudio())},
		{"thumbnail", thumbnailArgs(source, filepath.Join(staged, ThumbnailName), thumbnailOffset(f.thumbnailOffset, total), outputHeight(thumbnailMaxHeight, sourceHeight))},
	}
	for _, step := range steps {
		if err := f.run(ctx, logger, step.phase, step.args, total); err != nil {
			return videos.Outputs{}, err
		}
	}

	for _, name := range []string{MasterPlaylistName, ProgressiveName, ThumbnailName} {
		info, err := os.Stat(filepath.Join(staged, filepath.FromSlash(name)))
		if err != nil || info.Size() == 0 {
			return videos.Outputs{}, services.Wrap(services.ErrExternalTool, "encoding", "verify outputs",
				fmt.Sprintf("ffmpeg did not produce %s", name), err)
		}
	}

	if err := f.storage.Publish(staged, videoID); err != nil {
		return videos.Outputs{}, services.Wrap(services.ErrTransient, "encoding", "publish", "move outputs into serving storage", err)
	}
	published = true

	return videos.Outputs{
		AdaptiveManifestURL: f.storage.URL(videoID, MasterPlaylistName),
		ProgressiveURL:      f.storage.URL(videoID, ProgressiveName),
		ThumbnailURL:        f.storage.URL(videoID, ThumbnailName),
	}, nil
}

// run executes ffmpeg in its own process group and streams -progress output
// into the log. When ctx ends the whole group is killed.
func (f *FFmpeg) run(ctx context.Context, logger *slog.Logger, phase string, args []string, total time.Duration) error {
	cmd := commandContext(ctx, f.ffmpegBin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}
	cmd.WaitDelay = processWaitDelay

	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", phase, "start ffmpeg", err)
	}

	parser := newProgressParser(phase, total)
	sampler := logging.NewProgressSampler(5)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if update, ok := parser.Feed(scanner.Text()); ok {
			logProgress(logger, sampler, update, total)
		}
	}

	waitErr := cmd.Wait()
	if waitErr == nil {
		return nil
	}
	detail := strings.TrimSpace(stderr.String())
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "encoding", phase, "encode exceeded its time limit", waitErr)
	case ctx.Err() != nil:
		return services.Wrap(services.ErrTransient, "encoding", phase, "encode cancelled", ctx.Err())
	case isInvalidInput(detail):
		return services.Wrap(services.ErrPermanent, "encoding", phase, detail, waitErr)
	default:
		return services.Wrap(services.ErrExternalTool, "encoding", phase, detail, waitErr)
	}
}

// SelectLadder keeps the rungs no taller than the source, tallest first. The
// lowest rung is always kept so small sources still get an adaptive stream. An
// unknown source height keeps the whole ladder.
func SelectLadder(renditions []config.Rendition, sourceHeight int) []config.Rendition {
	sorted := append([]config.Rendition(nil), renditions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Height > sorted[j].Height })
	if sourceHeight <= 0 || len(sorted) == 0 {
		return sorted
	}
	kept := make([]config.Rendition, 0, len(sorted))
	for _, rung := range sorted {
		if rung.Height <= sourceHeight {
			kept = append(kept, rung)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, sorted[len(sorted)-1])
	}
	return kept
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-nostats", "-progress", "pipe:1"}
}

func hlsArgs(source, outDir string, rungs []config.Rendition, hasAudio bool, segmentSeconds int) []string {
	if segmentSeconds <= 0 {
		segmentSeconds = 6
	}
	args := append(baseArgs(), "-i", source)

	var filter strings.Builder
	if len(rungs) == 1 {
		fmt.Fprintf(&filter, "[0:v:0]scale=-2:%d[v0]", evenHeight(rungs[0].Height))
	} else {
		fmt.Fprintf(&filter, "[0:v:0]split=%d", len(rungs))
		for i := range rungs {
			fmt.Fprintf(&filter, "[s%d]", i)
		}
		for i, rung := range rungs {
			fmt.Fprintf(&filter, ";[s%d]scale=-2:%d[v%d]", i, evenHeight(rung.Height), i)
		}
	}
	args = append(args, "-filter_complex", filter.String())

	streamMap := make([]string, 0, len(rungs))
	for i, rung := range rungs {
		idx := strconv.Itoa(i)
		args = append(args, "-map", "[v"+idx+"]", "-c:v:"+idx, "libx264", "-b:v:"+idx, rung.VideoBitrate)
		entry := "v:" + idx
		if hasAudio {
			audioRate := strings.TrimSpace(rung.AudioBitrate)
			if audioRate == "" {
				audioRate = defaultAudioRate
			}
			args = append(args, "-map", "0:a:0", "-c:a:"+idx, "aac", "-b:a:"+idx, audioRate, "-ac:a:"+idx, "2")
			entry += ",a:" + idx
		}
		streamMap = append(streamMap, entry+",name:"+rung.Name)
	}

	segment := strconv.Itoa(segmentSeconds)
	args = append(args,
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-sc_threshold", "0",
		"-force_key_frames", "expr:gte(t,n_forced*"+segment+")",
		"-f", "hls",
		"-hls_time", segment,
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, "hls", "%v", "segment_%03d.ts"),
		"-master_pl_name", filepath.Base(MasterPlaylistName),
		"-var_stream_map", strings.Join(streamMap, " "),
		filepath.Join(outDir, "hls", "%v", "index.m3u8"),
	)
	return args
}

func progressiveArgs(source, output string, height int, hasAudio bool) []string {
	args := append(baseArgs(), "-i", source, "-map", "0:v:0")
	if hasAudio {
		args = append(args, "-map", "0:a:0")
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=-2:%d", height),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p",
	)
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", defaultAudioRate, "-ac", "2")
	}
	return append(args, "-movflags", "+faststart", output)
}

func thumbnailArgs(source, output string, offset time.Duration, height int) []string {
	args := append(baseArgs(), "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64), "-i", source)
	return append(args, "-frames:v", "1", "-vf", fmt.Sprintf("scale=-2:%d", height), "-q:v", "3", output)
}

// outputHeight caps target at the source height and rounds to an even value.
func outputHeight(target, sourceHeight int) int {
	if sourceHeight > 0 && (target <= 0 || sourceHeight < target) {
		target = sourceHeight
	}
	if target <= 0 {
		target = 720
	}
	return evenHeight(target)
}

func evenHeight(h int) int {
	if h%2 != 0 {
		h--
	}
	if h < 2 {
		h = 2
	}
	return h
}

func thumbnailOffset(seconds int, total time.Duration) time.Duration {
	offset := time.Duration(seconds) * time.Second
	if offset < 0 {
		offset = 0
	}
	if total > 0 && offset >= total {
		offset = total / 2
	}
	return offset
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
