package service

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditServiceSubscribe(t *testing.T) {
	svc := NewAuditService(NewMemoryLogStore(), time.Second)
	ch, unsubscribe := svc.Subscribe(1)
	defer unsubscribe()

	require.NoError(t, svc.Record(context.Background(), &model.AuditLog{ID: "a", CreatedAt: testNow}))
	// buffer is full, this one is dropped rather than blocking
	require.NoError(t, svc.Record(context.Background(), &model.AuditLog{ID: "b", CreatedAt: testNow}))

	got := <-ch
	assert.Equal(t, "a", got.ID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected entry %s", extra.ID)
	default:
	}
}

func TestAuditServiceRecordSurvivesCancel(t *testing.T) {
	store := NewMemoryLogStore()
	svc := NewAuditService(store, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, svc.Record(ctx, &model.AuditLog{ID: "a", CreatedAt: testNow}))
	assert.Equal(t, 1, store.Len())
}

func TestAuditServiceList(t *testing.T) {
	store := NewMemoryLogStore()
	svc := NewAuditService(store, time.Second)
	for i, id := range []string{"a", "b", "c"} {
		seedLog(store, id, testNow.Add(time.Duration(i)*time.Minute), model.StatusSuccess)
	}

	rows, err := svc.List(context.Background(), model.LogFilter{Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].ID)
}

func TestMemoryLogStoreRollback(t *testing.T) {
	store := NewMemoryLogStore()
	seedLog(store, "a", testNow, model.StatusSuccess)

	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		n, err := store.Delete(ctx, []string{"a", "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return errBackendDown
	})
	require.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, 1, store.Len())
}
