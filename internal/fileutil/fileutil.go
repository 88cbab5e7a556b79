package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrVerifyMismatch reports that a copied file does not match its source.
var ErrVerifyMismatch = errors.New("copy verification failed")

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(ctx context.Context, src, dst string) error {
	return CopyFileMode(ctx, src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst. The copy
// stops early when ctx is cancelled.
func CopyFileMode(ctx context.Context, src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, contextReader{ctx: ctx, r: in}); err != nil {
		return err
	}
	return out.Close()
}

// CopyFileVerified copies src to dst and then re-reads dst to confirm its size
// and SHA-256 digest match the source. dst is removed on mismatch.
func CopyFileVerified(ctx context.Context, src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	written, err := io.Copy(out, io.TeeReader(contextReader{ctx: ctx, r: in}, srcHasher))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrVerifyMismatch, srcInfo.Size(), written)
	}

	dstSum, err := HashFile(dst)
	if err != nil {
		return fmt.Errorf("hash destination: %w", err)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: sha256 differs", ErrVerifyMismatch)
	}
	return nil
}

// HashFile returns the SHA-256 digest of the file at path.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// ReplaceDir moves staged into place at target. An existing target is moved
// aside first and removed once the rename succeeds, so readers never observe a
// half-written directory.
func ReplaceDir(staged, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	var backup string
	if _, err := os.Stat(target); err == nil {
		backup = target + ".old"
		_ = os.RemoveAll(backup)
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("move existing %s aside: %w", target, err)
		}
	}
	if err := os.Rename(staged, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("publish %s: %w", target, err)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
	}
	return c.r.Read(p)
}
