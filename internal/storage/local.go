package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"townhall/internal/config"
	"townhall/internal/fileutil"
	"townhall/internal/services"
)

// ErrInvalidKey reports a locator or video id that escapes its storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// Local serves raw uploads and published media from the local filesystem.
type Local struct {
	rawDir     string
	servingDir string
	baseURL    string
}

// NewLocal constructs a filesystem store rooted at the configured raw and
// serving directories.
func NewLocal(cfg *config.Config) *Local {
	return &Local{
		rawDir:     cfg.Paths.RawDir,
		servingDir: cfg.Paths.ServingDir,
		baseURL:    strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
	}
}

// Resolve maps an input locator to a readable file inside the raw directory.
// Locators are slash-separated keys relative to the raw root; an optional
// "file://" scheme and absolute paths under the root are accepted as well.
func (l *Local) Resolve(locator string) (string, error) {
	key := strings.TrimSpace(locator)
	key = strings.TrimPrefix(key, "file://")
	if key == "" {
		return "", services.Wrap(services.ErrPermanent, "storage", "resolve", "empty locator", ErrInvalidKey)
	}

	var candidate string
	if filepath.IsAbs(key) {
		candidate = filepath.Clean(key)
	} else {
		candidate = filepath.Join(l.rawDir, filepath.FromSlash(key))
	}
	if !within(l.rawDir, candidate) {
		return "", services.Wrap(services.ErrPermanent, "storage", "resolve",
			fmt.Sprintf("locator %q escapes raw directory", locator), ErrInvalidKey)
	}

	info, err := os.Stat(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrPermanent, "storage", "resolve",
				fmt.Sprintf("raw object %q not found", locator), err)
		}
		return "", services.Wrap(services.ErrTransient, "storage", "resolve", "stat raw object", err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrPermanent, "storage", "resolve",
			fmt.Sprintf("raw object %q is a directory", locator), ErrInvalidKey)
	}
	return candidate, nil
}

// VideoDir returns the serving directory that holds the published outputs for
// videoID.
func (l *Local) VideoDir(videoID string) (string, error) {
	if err := validateSegment(videoID); err != nil {
		return "", err
	}
	return filepath.Join(l.servingDir, videoID), nil
}

// Stage creates an empty hidden working directory next to the serving
// location of videoID. Callers publish it with Publish or remove it.
func (l *Local) Stage(videoID string) (string, error) {
	if err := validateSegment(videoID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.servingDir, 0o755); err != nil {
		return "", fmt.Errorf("create serving dir: %w", err)
	}
	dir, err := os.MkdirTemp(l.servingDir, "."+videoID+"-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Publish atomically replaces the serving directory of videoID with staged.
func (l *Local) Publish(staged, videoID string) error {
	target, err := l.VideoDir(videoID)
	if err != nil {
		return err
	}
	return fileutil.ReplaceDir(staged, target)
}

// URL returns the public URL of a published file.
func (l *Local) URL(videoID, name string) string {
	return l.baseURL + "/" + url.PathEscape(videoID) + "/" + escapePath(name)
}

// RawDir returns the raw upload root.
func (l *Local) RawDir() string { return l.rawDir }

// ServingDir returns the published media root.
func (l *Local) ServingDir() string { return l.servingDir }

func validateSegment(videoID string) error {
	id := strings.TrimSpace(videoID)
	if id == "" || id != videoID || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: video id %q", ErrInvalidKey, videoID)
	}
	return nil
}

func within(root, candidate string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

func escapePath(name string) string {
	parts := strings.Split(path.Clean("/" + filepath.ToSlash(name))[1:], "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
