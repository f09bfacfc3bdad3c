// Package reader parses textual snapshots of kernel binder transactions into
// (from, to) PID pairs.
//
// The expected column layout is the one the binder driver prints for every
// in-flight transaction:
//
//	outgoing transaction 2716: 0000000000000000 from 1234:1250 to 5678:0 code 3 flags 10 ...
//
// The token after "from" carries the source pid and the token three
// positions further along carries the destination pid; both may be followed
// by ":<tid>" or ":<name>". Lines that deviate from this layout are skipped.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
)

const (
	fromMarker = "from"
	toMarker   = "to"

	// destOffset is the distance between the "from" token and the destination
	// pid token ("from 1234:x to 5678:y").
	destOffset = 3

	maxLineSize = 1 << 20
)

// Record is one binder transaction between two processes.
type Record struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// PairList holds records in the order their lines appeared in the snapshot.
type PairList []Record

// Stats describes how the lines of a snapshot were classified.
type Stats struct {
	Lines        int `json:"lines"`
	Candidates   int `json:"candidates"`
	Records      int `json:"records"`
	Malformed    int `json:"malformed"`
	ZeroEndpoint int `json:"zero_endpoint"`
}

// Options tunes Parse and Read.
type Options struct {
	// MaxBytes caps how much of the snapshot is consumed. Zero means no cap.
	MaxBytes int64
}

// Read opens src and parses it. A source that cannot be opened or read yields
// an error wrapping ErrSourceUnavailable; records parsed before a mid-stream
// read failure are still returned.
func Read(ctx context.Context, src Source, opts Options) (PairList, Stats, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: opening %s: %w", apperrors.ErrSourceUnavailable, src.Name(), err)
	}
	defer rc.Close()

	pairs, stats, err := Parse(rc, opts)
	if err != nil {
		return pairs, stats, fmt.Errorf("%w: reading %s: %w", apperrors.ErrSourceUnavailable, src.Name(), err)
	}
	return pairs, stats, nil
}

// Parse scans r line by line and extracts every well-formed transaction.
func Parse(r io.Reader, opts Options) (PairList, Stats, error) {
	if opts.MaxBytes > 0 {
		r = io.LimitReader(r, opts.MaxBytes)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		pairs PairList
		stats Stats
	)
	for scanner.Scan() {
		stats.Lines++
		line := scanner.Text()
		if !IsCandidate(line) {
			continue
		}
		stats.Candidates++
		rec, err := ParseLine(line)
		switch {
		case err == nil:
			pairs = append(pairs, rec)
			stats.Records++
		case apperrors.Is(err, errZeroEndpoint):
			stats.ZeroEndpoint++
		default:
			stats.Malformed++
		}
	}
	return pairs, stats, scanner.Err()
}

// IsCandidate reports whether line mentions both markers anywhere in it.
func IsCandidate(line string) bool {
	return strings.Contains(line, fromMarker) && strings.Contains(line, toMarker)
}

var errZeroEndpoint = fmt.Errorf("%w: zero pid endpoint", apperrors.ErrMalformedLine)

// ParseLine extracts the record from a single candidate line. It returns an
// error wrapping ErrMalformedLine when the layout does not match or either
// endpoint is zero.
func ParseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	idx := -1
	for i, f := range fields {
		if f == fromMarker {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: no %q token", apperrors.ErrMalformedLine, fromMarker)
	}
	if idx+destOffset >= len(fields) {
		return Record{}, fmt.Errorf("%w: truncated after %q", apperrors.ErrMalformedLine, fromMarker)
	}

	from, err := parsePID(fields[idx+1])
	if err != nil {
		return Record{}, err
	}
	to, err := parsePID(fields[idx+destOffset])
	if err != nil {
		return Record{}, err
	}
	if from == 0 || to == 0 {
		return Record{}, errZeroEndpoint
	}
	return Record{From: from, To: to}, nil
}

// parsePID strips a ":suffix" and requires the remainder to be ASCII digits.
func parsePID(tok string) (int, error) {
	head, _, _ := strings.Cut(tok, ":")
	if head == "" {
		return 0, fmt.Errorf("%w: empty pid in %q", apperrors.ErrMalformedLine, tok)
	}
	for i := 0; i < len(head); i++ {
		if head[i] < '0' || head[i] > '9' {
			return 0, fmt.Errorf("%w: non-numeric pid %q", apperrors.ErrMalformedLine, tok)
		}
	}
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("%w: pid %q out of range", apperrors.ErrMalformedLine, tok)
	}
	return pid, nil
}
