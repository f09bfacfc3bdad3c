// Package procinfo attaches process names to resolved pids using procfs.
package procinfo

import (
	"log/slog"
	"strings"

	"github.com/prometheus/procfs"
)

// Process names one pid. Comm and Cmdline are empty when the process has
// exited or /proc is not readable.
type Process struct {
	PID     int    `json:"pid"`
	Comm    string `json:"comm,omitempty"`
	Cmdline string `json:"cmdline,omitempty"`
}

// Annotator looks pids up under a procfs mount.
type Annotator struct {
	fs     procfs.FS
	logger *slog.Logger
}

// New opens the procfs mount at root ("/proc" when empty).
func New(root string) (*Annotator, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, err
	}
	return &Annotator{
		fs:     fs,
		logger: slog.Default().With("component", "procinfo"),
	}, nil
}

// Annotate returns one entry per pid, in order. Lookup failures are logged at
// debug level and leave the names empty.
func (a *Annotator) Annotate(pids []int) []Process {
	out := make([]Process, 0, len(pids))
	for _, pid := range pids {
		p := Process{PID: pid}
		proc, err := a.fs.Proc(pid)
		if err != nil {
			a.logger.Debug("process lookup failed", "pid", pid, "error", err)
			out = append(out, p)
			continue
		}
		if comm, err := proc.Comm(); err == nil {
			p.Comm = comm
		}
		if args, err := proc.CmdLine(); err == nil {
			p.Cmdline = strings.Join(args, " ")
		}
		out = append(out, p)
	}
	return out
}
