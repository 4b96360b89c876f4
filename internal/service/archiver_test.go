package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchiverFixture(t *testing.T, mutate func(*model.AuditSettings)) (*Archiver, *MemoryLogStore, *memBlobStore) {
	t.Helper()
	s := enabledSettings()
	s.RetainLogsDays = 30
	if mutate != nil {
		mutate(s)
	}
	store := NewMemoryLogStore()
	blobs := newMemBlobStore()
	a := NewArchiver(store, blobs, NewMemorySettingsStore(s), clock.NewMockClock(testNow), time.Second)
	return a, store, blobs
}

func TestArchiveExpiredEmptyIsNoop(t *testing.T) {
	a, store, blobs := newArchiverFixture(t, nil)
	seedLog(store, "fresh", testNow.Add(-time.Hour), model.StatusSuccess)

	res, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusNoop, res.Status)
	assert.Equal(t, "No API logs found to archive", res.Message)
	assert.Equal(t, 0, blobs.puts)
	assert.Equal(t, 1, store.Len())
}

func TestArchiveExpiredDeletePolicy(t *testing.T) {
	a, store, blobs := newArchiverFixture(t, nil)
	old := testNow.AddDate(0, 0, -40)
	seedLog(store, "old-1", old, model.StatusSuccess)
	seedLog(store, "old-2", old.Add(2*time.Hour), model.StatusFailed)
	seedLog(store, "fresh", testNow.Add(-time.Hour), model.StatusSuccess)

	res, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusSuccess, res.Status)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "2 API logs archived", res.Message)
	assert.Equal(t, model.ArchivePolicyDelete, res.Policy)

	wantPath := fmt.Sprintf("api-logs/staging_%s_to_%s_api_logs.jsonl",
		old.Format("20060102_150405"), old.Add(2*time.Hour).Format("20060102_150405"))
	assert.Equal(t, wantPath, res.BlobPath)
	assert.Equal(t, "mem://"+wantPath, res.BlobRef)

	rows := decodeArchive(t, blobs.blobs[wantPath])
	require.Len(t, rows, 2)
	assert.Equal(t, "old-1", rows[0]["name"])
	assert.Equal(t, "Failed", rows[1]["status"])

	assert.Equal(t, 1, store.Len())
	assert.False(t, blobs.inTx, "upload must not hold the store transaction")
	remaining, err := store.Query(context.Background(), model.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", remaining[0].ID)
}

func TestArchiveExpiredFlagPolicy(t *testing.T) {
	a, store, blobs := newArchiverFixture(t, func(s *model.AuditSettings) {
		s.ArchivePolicy = model.ArchivePolicyFlag
		s.S3Prefix = "/cold/api/"
	})
	seedLog(store, "old-1", testNow.AddDate(0, 0, -31), model.StatusSuccess)

	res, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ArchivePolicyFlag, res.Policy)
	assert.Contains(t, res.BlobPath, "cold/api/staging_")

	rows, err := store.Query(context.Background(), model.LogFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Archived)
	assert.Equal(t, res.BlobRef, rows[0].ArchiveFile)

	// flagged rows are not archived twice
	res, err = a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusNoop, res.Status)
	assert.Equal(t, 1, blobs.puts)
}

func TestArchiveUploadFailureKeepsRecords(t *testing.T) {
	for _, policy := range []string{model.ArchivePolicyDelete, model.ArchivePolicyFlag} {
		t.Run(policy, func(t *testing.T) {
			a, store, blobs := newArchiverFixture(t, func(s *model.AuditSettings) { s.ArchivePolicy = policy })
			blobs.err = errBackendDown
			seedLog(store, "old-1", testNow.AddDate(0, 0, -60), model.StatusSuccess)
			seedLog(store, "old-2", testNow.AddDate(0, 0, -50), model.StatusSuccess)

			res, err := a.ArchiveExpired(context.Background())
			require.ErrorIs(t, err, ErrArchiveUpload)
			assert.Nil(t, res)

			rows, err := store.Query(context.Background(), model.LogFilter{})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			for _, r := range rows {
				assert.False(t, r.Archived)
				assert.Empty(t, r.ArchiveFile)
			}
		})
	}
}

func TestArchiveExpiredRespectsBatchSize(t *testing.T) {
	a, store, _ := newArchiverFixture(t, func(s *model.AuditSettings) { s.ArchiveBatchSize = 2 })
	old := testNow.AddDate(0, 0, -45)
	for i := 0; i < 5; i++ {
		seedLog(store, fmt.Sprintf("old-%d", i), old.Add(time.Duration(i)*time.Minute), model.StatusSuccess)
	}

	res, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 3, store.Len())
}

func TestArchiveRange(t *testing.T) {
	a, store, _ := newArchiverFixture(t, nil)
	from := testNow.Add(-3 * time.Hour)
	to := testNow.Add(-time.Hour)
	seedLog(store, "before", from.Add(-time.Minute), model.StatusSuccess)
	seedLog(store, "inside", from, model.StatusSuccess)
	seedLog(store, "edge", to, model.StatusSuccess)

	res, err := a.ArchiveRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 2, store.Len())
}

func TestArchiveRangeEmptyIsNoop(t *testing.T) {
	a, store, blobs := newArchiverFixture(t, nil)
	from := testNow.Add(-3 * time.Hour)
	to := testNow.Add(-time.Hour)
	seedLog(store, "before", from.Add(-time.Minute), model.StatusSuccess)
	seedLog(store, "after", to.Add(time.Minute), model.StatusSuccess)

	res, err := a.ArchiveRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusNoop, res.Status)
	assert.Equal(t, 0, blobs.puts)
	assert.Equal(t, 2, store.Len())

	// inverted range never reaches the store
	res, err = a.ArchiveRange(context.Background(), to, from)
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusNoop, res.Status)
	assert.Equal(t, "empty archive range", res.Message)
	assert.Equal(t, 0, blobs.puts)
	assert.Equal(t, 2, store.Len())
}

func TestArchiveSameSecondBatchesKeepEveryRecord(t *testing.T) {
	a, store, blobs := newArchiverFixture(t, func(s *model.AuditSettings) { s.ArchiveBatchSize = 2 })
	old := testNow.AddDate(0, 0, -40)
	for i := 0; i < 4; i++ {
		seedLog(store, fmt.Sprintf("old-%d", i), old.Add(time.Duration(i)*time.Millisecond), model.StatusSuccess)
	}

	first, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	second, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ArchivePath("api-logs", old, old), first.BlobPath)
	assert.NotEqual(t, first.BlobPath, second.BlobPath)
	assert.Contains(t, second.BlobPath, "staging_")
	assert.Equal(t, 0, store.Len())

	names := map[string]bool{}
	for _, data := range blobs.blobs {
		for _, row := range decodeArchive(t, data) {
			names[row["name"].(string)] = true
		}
	}
	assert.Len(t, blobs.blobs, 2)
	assert.Len(t, names, 4)
}

func TestArchiveRangeDisabled(t *testing.T) {
	a, _, _ := newArchiverFixture(t, func(s *model.AuditSettings) { s.Enabled = false })
	_, err := a.ArchiveRange(context.Background(), time.Time{}, testNow)
	require.ErrorIs(t, err, ErrAuditDisabled)

	res, err := a.ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ArchiveStatusNoop, res.Status)
}

func TestArchivePath(t *testing.T) {
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	last := time.Date(2026, 1, 9, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "api-logs/staging_20260102_030405_to_20260109_235959_api_logs.jsonl",
		ArchivePath("api-logs", first, last))
	assert.Equal(t, "api-logs/staging_20260102_030405_to_20260109_235959_2_api_logs.jsonl",
		archivePathSeq("api-logs", first, last, 2))
}

func decodeArchive(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		out = append(out, row)
	}
	require.NoError(t, sc.Err())
	return out
}
