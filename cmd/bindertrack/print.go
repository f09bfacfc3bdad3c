package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
)

func printResolution(out io.Writer, source string, res *binder.Resolution) {
	fmt.Fprintf(out, "pid %d: %s (%s)\n", res.TargetPID, countNoun(len(res.PIDs), "process", "processes"), res.Outcome())
	if !res.SourceAvailable {
		fmt.Fprintf(out, "  warning: %s could not be read; result is empty\n", source)
	}
	if res.Fault != "" {
		fmt.Fprintf(out, "  warning: walk stopped early: %s\n", res.Fault)
	}
	if res.Truncated {
		fmt.Fprintf(out, "  warning: walk hit the iteration limit after %d rounds\n", res.Iterations)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	names := make(map[int]string, len(res.Processes))
	for _, p := range res.Processes {
		names[p.PID] = p.Comm
		if p.Cmdline != "" {
			names[p.PID] = p.Cmdline
		}
	}
	for _, pid := range res.PIDs {
		marker := ""
		if pid == res.TargetPID {
			marker = "*"
		}
		fmt.Fprintf(tw, "  %s%d\t%s\n", marker, pid, names[pid])
	}
	tw.Flush()

	fmt.Fprintf(out, "  %s lines, %s pairs, %s malformed, %s groups; resolved in %s\n",
		humanize.Comma(int64(res.Parse.Lines)),
		humanize.Comma(int64(res.Pairs)),
		humanize.Comma(int64(res.Parse.Malformed)),
		humanize.Comma(int64(res.Groups)),
		time.Duration(res.DurationUs)*time.Microsecond,
	)
}

func countNoun(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
