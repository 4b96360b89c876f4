package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAuditRepoInsertQuery(t *testing.T) {
	repo := NewGormAuditRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, logAt("a", testNow.Add(-2*time.Minute), model.StatusSuccess)))
	require.NoError(t, repo.Insert(ctx, logAt("b", testNow.Add(-time.Minute), model.StatusFailed)))
	require.NoError(t, repo.Insert(ctx, logAt("c", testNow, model.StatusFailed)))

	rows, err := repo.Query(ctx, model.LogFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].ID)

	rows, err = repo.Query(ctx, model.LogFilter{Desc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0].ID)

	rows, err = repo.Query(ctx, model.LogFilter{From: testNow.Add(-time.Minute), To: testNow})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)

	n, err := repo.Count(ctx, model.LogFilter{Status: model.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGormAuditRepoDuplicate(t *testing.T) {
	repo := NewGormAuditRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, logAt("a", testNow, model.StatusSuccess)))
	err := repo.Insert(ctx, logAt("a", testNow, model.StatusSuccess))
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestGormAuditRepoDeleteAndMark(t *testing.T) {
	repo := NewGormAuditRepo(newTestDB(t))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Insert(ctx, logAt(id, testNow, model.StatusSuccess)))
	}

	n, err := repo.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.MarkArchived(ctx, []string{"b"}, "s3://bucket/key")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := repo.Query(ctx, model.LogFilter{OnlyUnarchived: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0].ID)

	rows, err = repo.Query(ctx, model.LogFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Archived)
	assert.Equal(t, "s3://bucket/key", rows[0].ArchiveFile)

	n, err = repo.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGormAuditRepoRunInTxRollback(t *testing.T) {
	repo := NewGormAuditRepo(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, logAt("a", testNow, model.StatusSuccess)))

	failure := errors.New("upload failed")
	err := repo.RunInTx(ctx, func(ctx context.Context) error {
		n, err := repo.Delete(ctx, []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		// nested call joins the same transaction
		return repo.RunInTx(ctx, func(context.Context) error { return failure })
	})
	require.ErrorIs(t, err, failure)

	n, err := repo.Count(ctx, model.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormAuditRepoRunInTxCommit(t *testing.T) {
	repo := NewGormAuditRepo(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, logAt("a", testNow, model.StatusSuccess)))

	require.NoError(t, repo.RunInTx(ctx, func(ctx context.Context) error {
		_, err := repo.MarkArchived(ctx, []string{"a"}, "file:///tmp/a.jsonl")
		return err
	}))

	rows, err := repo.Query(ctx, model.LogFilter{OnlyUnarchived: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
