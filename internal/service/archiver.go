package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
)

// BlobStore is the archive blob collaborator.
type BlobStore interface {
	// Put stores data at path and returns a reference to the stored blob.
	// It must not replace an existing blob; that case reports fs.ErrExist.
	Put(ctx context.Context, path string, data []byte, private bool) (string, error)
}

const (
	archiveStampLayout  = "20060102_150405"
	maxArchiveNameTries = 100
)

// archiveRow fixes the field set and order written to archive blobs.
type archiveRow struct {
	Name              string `json:"name"`
	Creation          string `json:"creation"`
	Method            string `json:"method"`
	User              string `json:"user"`
	IPAddress         string `json:"ip_address"`
	HTTPMethod        string `json:"http_method"`
	Status            string `json:"status"`
	StatusCode        int    `json:"status_code"`
	ExecutionTimeMs   int64  `json:"execution_time_ms"`
	ResponseSizeBytes int64  `json:"response_size_bytes"`
	RequestPayload    string `json:"request_payload"`
	ResponsePreview   string `json:"response_preview"`
	ErrorTrace        string `json:"error_trace"`
	AppName           string `json:"app_name"`
	RoleSnapshot      string `json:"role_snapshot"`
}

// Archiver 把旧的审计记录批量写入冷存储，成功后删除或标记原记录
type Archiver struct {
	mu            sync.Mutex // 同一进程内的批次串行执行
	store         LogStore
	blobs         BlobStore
	settings      SettingsProvider
	clock         clock.Clock
	uploadTimeout time.Duration
	log           *slog.Logger
}

func NewArchiver(store LogStore, blobs BlobStore, settings SettingsProvider, c clock.Clock, uploadTimeout time.Duration) *Archiver {
	if uploadTimeout <= 0 {
		uploadTimeout = time.Minute
	}
	return &Archiver{
		store:         store,
		blobs:         blobs,
		settings:      settings,
		clock:         clock.OrReal(c),
		uploadTimeout: uploadTimeout,
		log:           logger.Component("archiver"),
	}
}

// ArchiveRange archives unarchived records created in [from, to). A zero from
// leaves the start unbounded, a zero to means now.
func (a *Archiver) ArchiveRange(ctx context.Context, from, to time.Time) (*model.ArchiveResult, error) {
	settings, err := a.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return nil, ErrAuditDisabled
	}
	if to.IsZero() {
		to = a.clock.Now()
	}
	if !from.IsZero() && !from.Before(to) {
		return noop("empty archive range"), nil
	}
	filter := model.LogFilter{From: from, To: to, OnlyUnarchived: true}
	return a.run(ctx, "range", settings, filter)
}

// ArchiveExpired archives one batch of records older than the retention cutoff.
func (a *Archiver) ArchiveExpired(ctx context.Context) (*model.ArchiveResult, error) {
	settings, err := a.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return noop("API Audit is disabled"), nil
	}
	cutoff := a.clock.Now().AddDate(0, 0, -settings.RetentionDays())
	filter := model.LogFilter{To: cutoff, OnlyUnarchived: true, Limit: settings.BatchSize()}
	return a.run(ctx, "retention", settings, filter)
}

func (a *Archiver) run(ctx context.Context, mode string, settings *model.AuditSettings, filter model.LogFilter) (*model.ArchiveResult, error) {
	a.mu.Lock()
	result, err := a.archiveBatch(ctx, settings, filter)
	a.mu.Unlock()
	if err != nil {
		metrics.ArchiveBatches.WithLabelValues(mode, "error").Inc()
		a.log.ErrorContext(ctx, "archive batch failed", "mode", mode, "error", err)
		return nil, err
	}

	metrics.ArchiveBatches.WithLabelValues(mode, result.Status).Inc()
	if result.Status == model.ArchiveStatusSuccess {
		metrics.ArchivedRecords.Add(float64(result.Count))
		a.log.InfoContext(ctx, "archive batch stored",
			"mode", mode, "count", result.Count, "path", result.BlobPath, "policy", result.Policy)
	}
	return result, nil
}

// archiveBatch uploads before it retires. Only the captured ids are deleted or
// flagged, and that happens in a short transaction after the upload returned.
func (a *Archiver) archiveBatch(ctx context.Context, settings *model.AuditSettings, filter model.LogFilter) (*model.ArchiveResult, error) {
	rows, err := a.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("select archive batch: %w", err)
	}
	if len(rows) == 0 {
		return noop("No API logs found to archive"), nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	first, last := creationBounds(rows)

	content, err := encodeArchive(rows)
	if err != nil {
		return nil, fmt.Errorf("encode archive batch: %w", err)
	}
	path, ref, err := a.upload(ctx, settings.StoragePrefix(), first, last, content)
	if err != nil {
		return nil, err
	}

	policy := settings.Policy()
	err = a.store.RunInTx(ctx, func(ctx context.Context) error {
		if policy == model.ArchivePolicyFlag {
			_, err := a.store.MarkArchived(ctx, ids, ref)
			return err
		}
		_, err := a.store.Delete(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retire archived records: %w", err)
	}

	return &model.ArchiveResult{
		Status:   model.ArchiveStatusSuccess,
		Message:  fmt.Sprintf("%d API logs archived", len(ids)),
		Count:    len(ids),
		From:     first,
		To:       last,
		BlobPath: path,
		BlobRef:  ref,
		Policy:   policy,
	}, nil
}

// upload stores the batch under the span name, adding a sequence number when
// an earlier batch already took that name.
func (a *Archiver) upload(ctx context.Context, prefix string, first, last time.Time, content []byte) (string, string, error) {
	for seq := 0; seq < maxArchiveNameTries; seq++ {
		path := ArchivePath(prefix, first, last)
		if seq > 0 {
			path = archivePathSeq(prefix, first, last, seq)
		}
		uploadCtx, cancel := context.WithTimeout(ctx, a.uploadTimeout)
		ref, err := a.blobs.Put(uploadCtx, path, content, true)
		cancel()
		if err == nil {
			return path, ref, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("%w: %s: %v", ErrArchiveUpload, path, err)
		}
	}
	return "", "", fmt.Errorf("%w: no free blob name for %s", ErrArchiveUpload, ArchivePath(prefix, first, last))
}

func (a *Archiver) loadSettings(ctx context.Context) (*model.AuditSettings, error) {
	settings, err := a.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
	return settings, nil
}

// ArchivePath names the blob after the actual creation span of the batch.
func ArchivePath(prefix string, first, last time.Time) string {
	return fmt.Sprintf("%s/staging_%s_to_%s_api_logs.jsonl",
		prefix, first.UTC().Format(archiveStampLayout), last.UTC().Format(archiveStampLayout))
}

func archivePathSeq(prefix string, first, last time.Time, seq int) string {
	return fmt.Sprintf("%s/staging_%s_to_%s_%d_api_logs.jsonl",
		prefix, first.UTC().Format(archiveStampLayout), last.UTC().Format(archiveStampLayout), seq)
}

func encodeArchive(rows []*model.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range rows {
		if err := enc.Encode(archiveRow{
			Name:              r.ID,
			Creation:          r.CreatedAt.UTC().Format(time.RFC3339Nano),
			Method:            r.Method,
			User:              r.User,
			IPAddress:         r.IPAddress,
			HTTPMethod:        r.HTTPMethod,
			Status:            r.Status,
			StatusCode:        r.StatusCode,
			ExecutionTimeMs:   r.ExecutionTimeMs,
			ResponseSizeBytes: r.ResponseSizeBytes,
			RequestPayload:    r.RequestPayload,
			ResponsePreview:   r.ResponsePreview,
			ErrorTrace:        r.ErrorTrace,
			AppName:           r.AppName,
			RoleSnapshot:      r.RoleSnapshot,
		}); err != nil {
			return nil, err
		}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func creationBounds(rows []*model.AuditLog) (time.Time, time.Time) {
	first, last := rows[0].CreatedAt, rows[0].CreatedAt
	for _, r := range rows[1:] {
		if r.CreatedAt.Before(first) {
			first = r.CreatedAt
		}
		if r.CreatedAt.After(last) {
			last = r.CreatedAt
		}
	}
	return first, last
}

func noop(msg string) *model.ArchiveResult {
	return &model.ArchiveResult{Status: model.ArchiveStatusNoop, Message: msg}
}
