package encoding

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"townhall/internal/fileutil"
	"townhall/internal/logging"
	"townhall/internal/services"
)

// Copier is the degraded adapter: it publishes the raw upload byte for byte as
// the only progressive rendition.
type Copier struct {
	storage Storage
	logger  *slog.Logger
}

var _ Fallback = (*Copier)(nil)

// NewCopier constructs the fallback adapter.
func NewCopier(storage Storage, logger *slog.Logger) *Copier {
	return &Copier{storage: storage, logger: logging.NewComponentLogger(logger, "fallback")}
}

// CopyRawToServing copies the raw object to <serving>/<videoID>/original<ext>
// with checksum verification and returns its public URL.
func (c *Copier) CopyRawToServing(ctx context.Context, videoID, inputLocator string) (string, error) {
	source, err := c.storage.Resolve(inputLocator)
	if err != nil {
		return "", err
	}
	staged, err := c.storage.Stage(videoID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "fallback", "stage", "create staging directory", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staged)
		}
	}()

	name := OriginalName(source)
	if err := fileutil.CopyFileVerified(ctx, source, filepath.Join(staged, name)); err != nil {
		return "", services.Wrap(services.ErrTransient, "fallback", "copy", "copy raw upload", err)
	}
	if err := c.storage.Publish(staged, videoID); err != nil {
		return "", services.Wrap(services.ErrTransient, "fallback", "publish", "move copy into serving storage", err)
	}
	published = true

	url := c.storage.URL(videoID, name)
	logging.WithContext(ctx, c.logger).Info("raw upload published without transcoding",
		logging.String("source", source),
		logging.String("progressive_url", url),
	)
	return url, nil
}

// OriginalName returns the published file name for a raw upload, keeping its
// extension.
func OriginalName(source string) string {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" || strings.ContainsAny(ext, `/\ `) {
		return originalBaseName
	}
	return originalBaseName + ext
}
