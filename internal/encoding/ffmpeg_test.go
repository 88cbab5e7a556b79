package encoding_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"townhall/internal/config"
	"townhall/internal/encoding"
	"townhall/internal/logging"
	"townhall/internal/services"
	"townhall/internal/storage"
	"townhall/internal/testsupport"
)

const probe720 = `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"12.5","format_name":"mov,mp4"}}`

const stubFFmpegOK = `echo "$@" >> "$(dirname "$0")/ffmpeg.log"
if [ "$1" = "-version" ]; then echo "ffmpeg version 7.0"; exit 0; fi
for a in "$@"; do last="$a"; done
case "$last" in
  *index.m3u8)
    hls=$(dirname "$(dirname "$last")")
    mkdir -p "$hls"
    printf '#EXTM3U\n' > "$hls/master.m3u8" ;;
  *) printf 'data' > "$last" ;;
esac
echo "out_time_us=6000000"
echo "speed=2.0x"
echo "progress=continue"
echo "out_time_us=12500000"
echo "progress=end"`

type encoderFixture struct {
	cfg    *config.Config
	binDir string
	enc    *encoding.FFmpeg
}

func newEncoderFixture(t *testing.T, probeJSON, ffmpegBody string) *encoderFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithEncoderScripts("cat <<'JSON'\n"+probeJSON+"\nJSON", ffmpegBody))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RawDir, "uploads", "clip.mp4"), 4096)
	return &encoderFixture{
		cfg:    cfg,
		binDir: testsupport.BinDir(cfg),
		enc:    encoding.NewFFmpeg(cfg, storage.NewLocal(cfg), logging.NewNop()),
	}
}

func (f *encoderFixture) ffmpegLog(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.binDir, "ffmpeg.log"))
	if err != nil {
		t.Fatalf("read ffmpeg log: %v", err)
	}
	return string(data)
}

func (f *encoderFixture) assertNoLeftovers(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.cfg.Paths.ServingDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read serving dir: %v", err)
	}
	for _, entry := range entries {
		t.Fatalf("unexpected serving entry after failure: %s", entry.Name())
	}
}

func TestIsAvailable(t *testing.T) {
	fx := newEncoderFixture(t, probe720, stubFFmpegOK)
	if !fx.enc.IsAvailable(context.Background()) {
		t.Fatal("expected encoder available with working stubs")
	}

	fx.cfg.Encoding.FFmpegBinary = filepath.Join(fx.binDir, "missing-ffmpeg")
	broken := encoding.NewFFmpeg(fx.cfg, storage.NewLocal(fx.cfg), logging.NewNop())
	if broken.IsAvailable(context.Background()) {
		t.Fatal("expected encoder unavailable when ffmpeg is missing")
	}
}

func TestEncodePublishesLadderProgressiveAndThumbnail(t *testing.T) {
	fx := newEncoderFixture(t, probe720, stubFFmpegOK)

	outputs, err := fx.enc.Encode(context.Background(), "video-1", "uploads/clip.mp4")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if outputs.AdaptiveManifestURL != "/media/video-1/hls/master.m3u8" {
		t.Fatalf("unexpected manifest url %q", outputs.AdaptiveManifestURL)
	}
	if outputs.ProgressiveURL != "/media/video-1/progressive.mp4" || outputs.ThumbnailURL != "/media/video-1/thumbnail.jpg" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}

	videoDir := filepath.Join(fx.cfg.Paths.ServingDir, "video-1")
	for _, name := range []string{"hls/master.m3u8", "progressive.mp4", "thumbnail.jpg"} {
		if _, err := os.Stat(filepath.Join(videoDir, filepath.FromSlash(name))); err != nil {
			t.Fatalf("expected published %s: %v", name, err)
		}
	}

	log := fx.ffmpegLog(t)
	if !strings.Contains(log, "name:720p") || !strings.Contains(log, "name:360p") {
		t.Fatalf("expected 720p..360p ladder in ffmpeg args, got:\n%s", log)
	}
	if strings.Contains(log, "name:1080p") {
		t.Fatalf("1080p rung should be dropped for a 720p source:\n%s", log)
	}
	if !strings.Contains(log, "-progress pipe:1") {
		t.Fatalf("expected progress reporting flag:\n%s", log)
	}

	entries, _ := os.ReadDir(fx.cfg.Paths.ServingDir)
	if len(entries) != 1 {
		t.Fatalf("expected only the published video dir, got %d entries", len(entries))
	}
}

func TestEncodeWithoutVideoStreamIsPermanent(t *testing.T) {
	audioOnly := `{"streams":[{"index":0,"codec_type":"audio"}],"format":{"duration":"3"}}`
	fx := newEncoderFixture(t, audioOnly, stubFFmpegOK)

	_, err := fx.enc.Encode(context.Background(), "video-2", "uploads/clip.mp4")
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
	fx.assertNoLeftovers(t)
}

func TestEncodeMissingRawObjectIsPermanent(t *testing.T) {
	fx := newEncoderFixture(t, probe720, stubFFmpegOK)
	_, err := fx.enc.Encode(context.Background(), "video-3", "uploads/absent.mp4")
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestEncodeClassifiesFFmpegErrors(t *testing.T) {
	cases := []struct {
		name      string
		stderr    string
		permanent bool
	}{
		{"corrupt input", "clip.mp4: Invalid data found when processing input", true},
		{"encoder crash", "Conversion failed!", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `if [ "$1" = "-version" ]; then exit 0; fi
echo "` + tc.stderr + `" >&2
exit 1`
			fx := newEncoderFixture(t, probe720, body)
			_, err := fx.enc.Encode(context.Background(), "video-4", "uploads/clip.mp4")
			if err == nil {
				t.Fatal("expected encode error")
			}
			if services.IsPermanent(err) != tc.permanent {
				t.Fatalf("permanent=%v, want %v (err=%v)", services.IsPermanent(err), tc.permanent, err)
			}
			if !tc.permanent && !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.stderr) {
				t.Fatalf("expected stderr in error, got %v", err)
			}
			fx.assertNoLeftovers(t)
		})
	}
}

func TestEncodeTimeoutKillsProcessGroup(t *testing.T) {
	body := `if [ "$1" = "-version" ]; then exit 0; fi
sleep 30 &
wait`
	fx := newEncoderFixture(t, probe720, body)
	fx.cfg.Encoding.TimeoutSeconds = 1
	enc := encoding.NewFFmpeg(fx.cfg, storage.NewLocal(fx.cfg), logging.NewNop())

	start := time.Now()
	_, err := enc.Encode(context.Background(), "video-5", "uploads/clip.mp4")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("encode took %s after timeout; process group was not killed", elapsed)
	}
	fx.assertNoLeftovers(t)
}

func TestSelectLadder(t *testing.T) {
	ladder := config.DefaultRenditions()
	cases := []struct {
		height int
		want   []string
	}{
		{2160, []string{"1080p", "720p", "480p", "360p"}},
		{720, []string{"720p", "480p", "360p"}},
		{500, []string{"480p", "360p"}},
		{240, []string{"360p"}},
		{0, []string{"1080p", "720p", "480p", "360p"}},
	}
	for _, tc := range cases {
		got := encoding.SelectLadder(ladder, tc.height)
		names := make([]string, 0, len(got))
		for _, rung := range got {
			names = append(names, rung.Name)
		}
		if strings.Join(names, ",") != strings.Join(tc.want, ",") {
			t.Fatalf("height %d: got %v want %v", tc.height, names, tc.want)
		}
	}
}
