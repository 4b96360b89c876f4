package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrDuplicateRecord is returned when a record id is already stored.
var ErrDuplicateRecord = errors.New("audit record already exists")

type txKey struct{}

// GormAuditRepo stores audit records in api_access_logs.
type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

// conn returns the transaction bound to ctx, or the root handle.
func (r *GormAuditRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *GormAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	// postgres 只保留微秒精度
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	err := r.conn(ctx).Create(entry).Error
	if isUniqueViolation(err) {
		return ErrDuplicateRecord
	}
	return err
}

func (r *GormAuditRepo) Query(ctx context.Context, filter model.LogFilter) ([]*model.AuditLog, error) {
	q := applyFilter(r.conn(ctx).Model(&model.AuditLog{}), filter)
	if filter.Desc {
		q = q.Order("creation DESC").Order("id DESC")
	} else {
		q = q.Order("creation ASC").Order("id ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	rows := make([]*model.AuditLog, 0)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormAuditRepo) Count(ctx context.Context, filter model.LogFilter) (int64, error) {
	var n int64
	err := applyFilter(r.conn(ctx).Model(&model.AuditLog{}), filter).Count(&n).Error
	return n, err
}

func (r *GormAuditRepo) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.conn(ctx).Where("id IN ?", ids).Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}

func (r *GormAuditRepo) MarkArchived(ctx context.Context, ids []string, archiveRef string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.conn(ctx).Model(&model.AuditLog{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"archived": true, "archive_file": archiveRef})
	return res.RowsAffected, res.Error
}

// RunInTx joins an outer transaction when ctx already carries one.
func (r *GormAuditRepo) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func applyFilter(q *gorm.DB, f model.LogFilter) *gorm.DB {
	if !f.From.IsZero() {
		q = q.Where("creation >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("creation < ?", f.To.UTC())
	}
	if f.User != "" {
		q = q.Where("user_id = ?", f.User)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OnlyUnarchived {
		q = q.Where("archived = ?", false)
	}
	return q
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
