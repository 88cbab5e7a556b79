package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"townhall/internal/config"
)

// Requirement names something on the host the daemon depends on. Command is
// a binary name or path for executables and the directory for paths.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the outcome of checking it. Detail explains
// why an unavailable requirement failed.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

const (
	readable  = unix.R_OK | unix.X_OK
	writeable = unix.R_OK | unix.W_OK | unix.X_OK
)

// Requirements returns the encoder binaries. Both are optional because jobs
// fall back to copying the raw upload when they are missing.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{"FFmpeg", cfg.Encoding.FFmpegBinary, "Transcodes uploads into the HLS ladder, progressive MP4, and thumbnail", true},
		{"FFprobe", cfg.Encoding.FFprobeBinary, "Reads source dimensions to trim the rendition ladder", true},
	}
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		out[i] = Status{Requirement: req}
		out[i].Available, out[i].Detail = lookBinary(req.Command)
	}
	return out
}

func lookBinary(command string) (bool, string) {
	if command == "" {
		return false, "command not configured"
	}
	if _, err := exec.LookPath(command); err != nil {
		return false, fmt.Sprintf("binary %q not found", command)
	}
	return true, ""
}

// CheckDirectory reports whether path is a directory the process can use
// with the given unix access bits.
func CheckDirectory(name, path string, mode uint32) Status {
	st := Status{Requirement: Requirement{Name: name, Command: path, Description: "directory"}}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		st.Detail = "does not exist"
	case err != nil:
		st.Detail = "stat: " + err.Error()
	case !info.IsDir():
		st.Detail = "is not a directory"
	default:
		if err := unix.Access(path, mode); err != nil {
			st.Detail = "insufficient permissions: " + err.Error()
		} else {
			st.Available = true
		}
	}
	return st
}

// CheckSystem checks the encoder binaries and the daemon's directories. Raw
// uploads are only read, so that directory need not be writable.
func CheckSystem(cfg *config.Config) []Status {
	return append(CheckBinaries(Requirements(cfg)),
		CheckDirectory("Data directory", cfg.Paths.DataDir, writeable),
		CheckDirectory("Raw uploads", cfg.Paths.RawDir, readable),
		CheckDirectory("Serving directory", cfg.Paths.ServingDir, writeable),
	)
}

// MissingRequired lists unavailable requirements that are not optional.
func MissingRequired(statuses []Status) []string {
	var names []string
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			names = append(names, st.Name)
		}
	}
	return names
}
