package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })
	return db
}

func logAt(id string, at time.Time, status string) *model.AuditLog {
	return &model.AuditLog{
		ID:         id,
		CreatedAt:  at,
		Method:     "orders.create",
		User:       "alice@example.com",
		Status:     status,
		StatusCode: 200,
		AppName:    "orders",
	}
}
