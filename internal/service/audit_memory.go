package service

import (
	"context"
	"sort"
	"sync"

	"github.com/GoPolymarket/apiaudit/internal/model"
)

// MemoryLogStore is the LogStore used when no database is configured.
// Writes made through a RunInTx context are buffered and applied on commit.
type MemoryLogStore struct {
	mu      sync.RWMutex
	records map[string]*model.AuditLog
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{records: make(map[string]*model.AuditLog)}
}

type memTxKey struct{}

type memTx struct {
	ops []func(records map[string]*model.AuditLog)
}

func (s *MemoryLogStore) Insert(ctx context.Context, entry *model.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *entry
	op := func(records map[string]*model.AuditLog) { records[cp.ID] = &cp }
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.ops = append(tx.ops, op)
		return nil
	}
	s.mu.Lock()
	op(s.records)
	s.mu.Unlock()
	return nil
}

func (s *MemoryLogStore) Query(ctx context.Context, filter model.LogFilter) ([]*model.AuditLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*model.AuditLog, 0)
	for _, r := range s.records {
		if matches(r, filter) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if filter.Desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryLogStore) Count(ctx context.Context, filter model.LogFilter) (int64, error) {
	filter.Limit = 0
	rows, err := s.Query(ctx, filter)
	return int64(len(rows)), err
}

func (s *MemoryLogStore) Delete(ctx context.Context, ids []string) (int64, error) {
	return s.apply(ctx, ids, func(records map[string]*model.AuditLog, id string) {
		delete(records, id)
	})
}

func (s *MemoryLogStore) MarkArchived(ctx context.Context, ids []string, archiveRef string) (int64, error) {
	return s.apply(ctx, ids, func(records map[string]*model.AuditLog, id string) {
		r := records[id]
		r.Archived = true
		r.ArchiveFile = archiveRef
	})
}

func (s *MemoryLogStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(memTxKey{}).(*memTx); nested {
		return fn(ctx)
	}
	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range tx.ops {
		op(s.records)
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemoryLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryLogStore) apply(ctx context.Context, ids []string, fn func(map[string]*model.AuditLog, string)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	var n int64
	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			present = append(present, id)
			n++
		}
	}
	s.mu.RUnlock()

	op := func(records map[string]*model.AuditLog) {
		for _, id := range present {
			if _, ok := records[id]; ok {
				fn(records, id)
			}
		}
	}
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.ops = append(tx.ops, op)
		return n, nil
	}
	s.mu.Lock()
	op(s.records)
	s.mu.Unlock()
	return n, nil
}

func matches(r *model.AuditLog, f model.LogFilter) bool {
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	if f.User != "" && r.User != f.User {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.OnlyUnarchived && r.Archived {
		return false
	}
	return true
}
