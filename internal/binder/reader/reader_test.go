package reader

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
)

const sampleSnapshot = `binder transactions:
proc 1234
context binder
  thread 1250: l 00 need_return 0 tr 0
    outgoing transaction 2716: 0000000000000000 from 1234:1250 to 5678:0 code 3 flags 10 pri 0:120 r1 node 91 size 72:0 data 0000000000000000
  buffer 2716: 0000000000000000 size 72:0:0 active
proc 5678
    incoming transaction 2716: 0000000000000000 from 1234:1250 to 5678:5690 code 3 flags 10 pri 0:120 r1 node 91 size 72:0 data 0000000000000000
    pending transaction 2720: 0000000000000000 from 0:0 to 5678:0 code 1 flags 11 pri 0:120 r1 node 91 size 16:0 data 0000000000000000
`

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Record
		wantErr bool
	}{
		{"kernel layout", "outgoing transaction 1: 0 from 100:110 to 200:0 code 1", Record{100, 200}, false},
		{"name suffix", "... from 100:a to 200:b ...", Record{100, 200}, false},
		{"no suffix", "x from 7 to 9 y", Record{7, 9}, false},
		{"self pair", "... from 10:a to 10:a ...", Record{10, 10}, false},
		{"zero source", "... from 0:kernel to 50:x ...", Record{}, true},
		{"zero destination", "... from 50:x to 0:kernel ...", Record{}, true},
		{"non-numeric source", "... from abc:x to 50:x ...", Record{}, true},
		{"non-numeric destination", "... from 50:x to -1:x ...", Record{}, true},
		{"missing from token", "transfrom 10 to 20", Record{}, true},
		{"truncated", "... from 10:a to", Record{}, true},
		{"empty pid", "from :a to 20", Record{}, true},
		{"overflow", "from 99999999999999999999999 to 20", Record{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got record %+v", got)
				}
				if !apperrors.Is(err, apperrors.ErrMalformedLine) {
					t.Errorf("error %v does not wrap ErrMalformedLine", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSnapshot(t *testing.T) {
	pairs, stats, err := Parse(strings.NewReader(sampleSnapshot), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := PairList{{1234, 5678}, {1234, 5678}}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %v, want %v", pairs, want)
	}
	if stats.Candidates != 3 || stats.Records != 2 || stats.ZeroEndpoint != 1 || stats.Malformed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Lines != 9 {
		t.Errorf("stats.Lines = %d, want 9", stats.Lines)
	}
}

func TestParseSkipsNonCandidates(t *testing.T) {
	input := "from 1 only\nto 2 only\nnothing here\n"
	pairs, stats, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pairs) != 0 || stats.Candidates != 0 {
		t.Errorf("expected no candidates, got pairs=%v stats=%+v", pairs, stats)
	}
}

func TestParseMaxBytes(t *testing.T) {
	input := "from 1 to 2\nfrom 3 to 4\n"
	pairs, _, err := Parse(strings.NewReader(input), Options{MaxBytes: int64(len("from 1 to 2\n"))})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := (PairList{{1, 2}}); !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %v, want %v", pairs, want)
	}
}

func TestReadMissingSource(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "does-not-exist"))
	pairs, _, err := Read(context.Background(), src, Options{})
	if !apperrors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("expected no pairs, got %v", pairs)
	}
}

func TestReadBytesSource(t *testing.T) {
	src := &BytesSource{Data: []byte("... from 100:a to 200:b ...\n... from 200:b to 300:c ...\n")}
	pairs, stats, err := Read(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := (PairList{{100, 200}, {200, 300}}); !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %v, want %v", pairs, want)
	}
	if stats.Records != 2 {
		t.Errorf("stats.Records = %d, want 2", stats.Records)
	}
}

func BenchmarkParse(b *testing.B) {
	var sb strings.Builder
	for i := 1; i <= 2000; i++ {
		sb.WriteString("    outgoing transaction 1: 0000000000000000 from ")
		sb.WriteString(strings.Repeat("1", 1+i%4))
		sb.WriteString(":1 to 42:0 code 3 flags 10 pri 0:120 r1 node 91 size 72:0\n")
	}
	data := sb.String()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if _, _, err := Parse(strings.NewReader(data), Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
