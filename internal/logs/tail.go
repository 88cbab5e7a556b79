package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	followPoll    = 250 * time.Millisecond
	tailChunkSize = 8 << 10
)

// TailOptions selects what Tail reads. A negative Offset reads the last Limit
// lines; otherwise reading starts at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	// Follow with a positive Wait blocks up to Wait for new lines when none
	// are available yet.
	Follow bool
	Wait   time.Duration
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset 0.
// An offset beyond the end of the file means it was truncated or rotated and
// reading restarts from the top.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	var (
		res TailResult
		err error
	)
	if opts.Offset < 0 {
		res, err = readTail(path, opts.Limit)
	} else {
		res, err = readFrom(path, opts.Offset)
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	if opts.Follow && opts.Wait > 0 && len(res.Lines) == 0 {
		return follow(ctx, path, res.Offset, opts.Wait)
	}
	return res, nil
}

// openLog returns a nil file without error when path does not exist.
func openLog(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	return f, info.Size(), nil
}

// readTail reads backwards from the end in chunks until it has limit lines.
func readTail(path string, limit int) (TailResult, error) {
	f, size, err := openLog(path)
	if f == nil || err != nil {
		return TailResult{}, err
	}
	defer f.Close()
	if limit <= 0 {
		return TailResult{Offset: size}, nil
	}

	var data []byte
	for pos := size; pos > 0 && bytes.Count(bytes.TrimSuffix(data, []byte("\n")), []byte("\n")) < limit; {
		n := min(int64(tailChunkSize), pos)
		pos -= n
		chunk := make([]byte, n)
		if _, err := f.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
		data = append(chunk, data...)
	}

	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return TailResult{Offset: size}, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return TailResult{Lines: lines, Offset: size}, nil
}

// readFrom returns complete lines after offset. A trailing line still being
// written is left for the next call.
func readFrom(path string, offset int64) (TailResult, error) {
	f, size, err := openLog(path)
	if f == nil || err != nil {
		return TailResult{}, err
	}
	defer f.Close()
	if offset > size {
		offset = 0
	}

	r := bufio.NewReader(io.NewSectionReader(f, offset, size-offset))
	res := TailResult{Offset: offset}
	for {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
		res.Offset += int64(len(line))
		res.Lines = append(res.Lines, strings.TrimRight(line, "\r\n"))
	}
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(followPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return readFrom(path, offset)
		case <-poll.C:
			res, err := readFrom(path, offset)
			if err != nil || len(res.Lines) > 0 {
				return res, err
			}
			offset = res.Offset
		}
	}
}
