package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// fakeBlob is an in-memory object store serving both the writer and reader
// sides. truncate corrupts reads to exercise the verification path.
type fakeBlob struct {
	puts     map[string][]byte
	truncate bool
}

func (f *fakeBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts[path] = b
	return nil
}

func (f *fakeBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.puts[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if f.truncate {
		b = b[:len(b)/2]
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlob) List(context.Context, string) ([]domain.BlobInfo, error) {
	infos := make([]domain.BlobInfo, 0, len(f.puts))
	for path, b := range f.puts {
		infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(b))})
	}
	return infos, nil
}

func (f *fakeBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.puts[path]
	return ok, nil
}

type fakeExecutionStore struct {
	results []domain.ExecutionResult
}

func (f *fakeExecutionStore) ListBefore(_ context.Context, _ time.Time) ([]domain.ExecutionResult, error) {
	return f.results, nil
}

type fakeAuditStore struct {
	audits []domain.ScanAudit
}

func (f *fakeAuditStore) ListBefore(_ context.Context, _ time.Time) ([]domain.ScanAudit, error) {
	return f.audits, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveExecutions(t *testing.T) {
	b := &fakeBlob{}
	execs := &fakeExecutionStore{results: []domain.ExecutionResult{
		{ID: "exec-1", Success: true, RealizedNetProfit: decimal.RequireFromString("1.25")},
		{ID: "exec-2", Success: false, FailureReason: "buy leg did not fill"},
	}}
	a := NewArchiver(b, b, execs, &fakeAuditStore{}, discard())

	cutoff := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveExecutions(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveExecutions: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	body, ok := b.puts["archive/executions/2025-03.jsonl"]
	if !ok {
		t.Fatalf("upload missing, got keys %v", keys(b.puts))
	}

	// Each line must be standalone JSON.
	sc := bufio.NewScanner(bytes.NewReader(body))
	var lines int
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}
}

func TestArchiveExecutionsEmpty(t *testing.T) {
	b := &fakeBlob{}
	a := NewArchiver(b, b, &fakeExecutionStore{}, &fakeAuditStore{}, discard())

	count, err := a.ArchiveExecutions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveExecutions: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if len(b.puts) != 0 {
		t.Fatalf("empty archive should not upload, got %v", keys(b.puts))
	}
}

func TestArchiveVerifiesStoredBytes(t *testing.T) {
	// The store returns fewer bytes than were uploaded; the archiver must
	// report the archive as failed rather than count the records.
	b := &fakeBlob{truncate: true}
	execs := &fakeExecutionStore{results: []domain.ExecutionResult{
		{ID: "exec-1", Success: true},
	}}
	a := NewArchiver(b, b, execs, &fakeAuditStore{}, discard())

	count, err := a.ArchiveExecutions(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "verify") {
		t.Fatalf("err = %v, want verification failure", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 on failed verification", count)
	}
}

func TestArchiveScanAudits(t *testing.T) {
	b := &fakeBlob{}
	audits := &fakeAuditStore{audits: []domain.ScanAudit{
		{CycleID: "c1", Kind: "cross_exchange", Found: 3},
	}}
	a := NewArchiver(b, b, &fakeExecutionStore{}, audits, discard())

	cutoff := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveScanAudits(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveScanAudits: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if _, ok := b.puts["archive/scan_audits/2025-01.jsonl"]; !ok {
		t.Fatalf("upload missing, got keys %v", keys(b.puts))
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
