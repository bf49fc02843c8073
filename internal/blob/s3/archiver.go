package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The archiver only needs
// time-ranged reads, not the full store surfaces.
// ---------------------------------------------------------------------------

// ExecutionArchiveStore provides read access to executions for archival.
type ExecutionArchiveStore interface {
	// ListBefore returns all executions started strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionResult, error)
}

// AuditArchiveStore provides read access to scan audits for archival.
type AuditArchiveStore interface {
	// ListBefore returns all scan audits started strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ScanAudit, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to blob
// storage. Every upload is read back and size-checked before the archive
// counts as written.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	executions ExecutionArchiveStore
	audits     AuditArchiveStore
	logger     *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, executions ExecutionArchiveStore, audits AuditArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		reader:     reader,
		executions: executions,
		audits:     audits,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveExecutions queries all executions started before the cutoff,
// serializes them to JSONL, and uploads the file to
// archive/executions/YYYY-MM.jsonl. Returns the count of archived records.
func (a *ArchiveImpl) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	executions, err := a.executions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(executions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(executions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}
	if err := a.verifyUpload(ctx, path, len(buf)); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions verify: %w", err)
	}

	count := int64(len(executions))
	a.logger.InfoContext(ctx, "executions archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// ArchiveScanAudits queries all scan cycle summaries started before the
// cutoff, serializes them to JSONL, and uploads the file to
// archive/scan_audits/YYYY-MM.jsonl. Returns the count of archived records.
func (a *ArchiveImpl) ArchiveScanAudits(ctx context.Context, before time.Time) (int64, error) {
	audits, err := a.audits.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan audits query: %w", err)
	}
	if len(audits) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(audits)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan audits marshal: %w", err)
	}

	path := archivePath("scan_audits", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive scan audits upload: %w", err)
	}
	if err := a.verifyUpload(ctx, path, len(buf)); err != nil {
		return 0, fmt.Errorf("s3blob: archive scan audits verify: %w", err)
	}

	count := int64(len(audits))
	a.logger.InfoContext(ctx, "scan audits archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// verifyUpload reads the object back and checks the stored size against what
// was sent. Records stay in the primary store until this passes, so a failed
// verification loses nothing.
func (a *ArchiveImpl) verifyUpload(ctx context.Context, path string, sent int) error {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("read back %s: %w", path, err)
	}
	defer body.Close()

	stored, err := io.Copy(io.Discard, body)
	if err != nil {
		return fmt.Errorf("read back %s: %w", path, err)
	}
	if stored != int64(sent) {
		return fmt.Errorf("%s: stored %d bytes, sent %d", path, stored, sent)
	}
	return nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/executions/2025-01.jsonl
//	archive/scan_audits/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
