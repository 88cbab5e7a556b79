package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"townhall/internal/config"
)

const userAgent = "townhall/0.1.0"

// Service is the notification surface used by the worker and the CLI.
type Service interface {
	NotifyEncodingCompleted(ctx context.Context, videoID string, duration time.Duration) error
	NotifyFallbackUsed(ctx context.Context, videoID string) error
	NotifyJobFailed(ctx context.Context, videoID string, attempts int, err error) error
	NotifyStopTimeout(ctx context.Context, pending int, waited time.Duration) error
	TestNotification(ctx context.Context) error
}

// category maps a notification to the config toggle that gates it.
type category int

const (
	categoryAlways category = iota
	categoryEncoding
	categoryFallback
	categoryErrors
)

// notice is one ntfy message. Title, Tags and Priority travel as headers
// and body is the plain-text message.
type notice struct {
	category category
	title    string
	body     string
	tags     []string
	priority string
}

// NewService posts to the configured ntfy topic URL, or returns a no-op
// Service when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		topic:  topic,
		client: &http.Client{Timeout: timeout},
		enabled: map[category]bool{
			categoryAlways:   true,
			categoryEncoding: cfg.Notifications.Encoding,
			categoryFallback: cfg.Notifications.Fallback,
			categoryErrors:   cfg.Notifications.Errors,
		},
	}
}

type ntfyService struct {
	topic   string
	client  *http.Client
	enabled map[category]bool
}

func (n *ntfyService) NotifyEncodingCompleted(ctx context.Context, videoID string, duration time.Duration) error {
	return n.publish(ctx, notice{
		category: categoryEncoding,
		title:    "townhall - Encoded",
		body:     fmt.Sprintf("Video %s is ready (encoded in %s)", strings.TrimSpace(videoID), roundDuration(duration)),
		tags:     []string{"encode", "completed"},
	})
}

func (n *ntfyService) NotifyFallbackUsed(ctx context.Context, videoID string) error {
	return n.publish(ctx, notice{
		category: categoryFallback,
		title:    "townhall - Degraded Publish",
		body:     fmt.Sprintf("Encoder unavailable; video %s was published untranscoded", strings.TrimSpace(videoID)),
		tags:     []string{"fallback", "warning"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, videoID string, attempts int, err error) error {
	cause := "unknown"
	if err != nil {
		cause = strings.TrimSpace(err.Error())
	}
	return n.publish(ctx, notice{
		category: categoryErrors,
		title:    "townhall - Encoding Failed",
		body: fmt.Sprintf("Encoding failed for video %s after %s: %s",
			strings.TrimSpace(videoID), plural(attempts, "attempt"), cause),
		tags:     []string{"error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyStopTimeout(ctx context.Context, pending int, waited time.Duration) error {
	return n.publish(ctx, notice{
		category: categoryErrors,
		title:    "townhall - Shutdown Timeout",
		body:     fmt.Sprintf("Worker stopped after %s with %d job(s) still in progress", roundDuration(waited), pending),
		tags:     []string{"shutdown", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.publish(ctx, notice{
		title:    "townhall - Test",
		body:     "Notification system test",
		tags:     []string{"test"},
		priority: "low",
	})
}

// publish drops notices whose category is switched off. Every notice is
// tagged "townhall" ahead of its own tags.
func (n *ntfyService) publish(ctx context.Context, msg notice) error {
	if !n.enabled[msg.category] {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	headers := req.Header
	headers.Set("User-Agent", userAgent)
	headers.Set("Content-Type", "text/plain; charset=utf-8")
	headers.Set("Title", msg.title)
	headers.Set("Tags", strings.Join(append([]string{"townhall"}, msg.tags...), ","))
	if msg.priority != "" {
		headers.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func roundDuration(d time.Duration) string {
	if d = d.Round(time.Second); d > 0 {
		return d.String()
	}
	return "0s"
}

type noopService struct{}

func (noopService) NotifyEncodingCompleted(context.Context, string, time.Duration) error { return nil }
func (noopService) NotifyFallbackUsed(context.Context, string) error                     { return nil }
func (noopService) NotifyJobFailed(context.Context, string, int, error) error            { return nil }
func (noopService) NotifyStopTimeout(context.Context, int, time.Duration) error          { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
