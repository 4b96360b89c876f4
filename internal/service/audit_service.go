package service

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
)

// LogStore is the structured log store collaborator.
type LogStore interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	Query(ctx context.Context, filter model.LogFilter) ([]*model.AuditLog, error)
	Count(ctx context.Context, filter model.LogFilter) (int64, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	MarkArchived(ctx context.Context, ids []string, archiveRef string) (int64, error)
	// RunInTx runs fn inside one unit of work; store calls made with the ctx
	// handed to fn join it. An error from fn rolls everything back.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultPersistTimeout = 2 * time.Second

// AuditService 负责落库以及向实时订阅者广播新记录
type AuditService struct {
	repo    LogStore
	timeout time.Duration

	subMu sync.RWMutex
	subs  map[chan *model.AuditLog]struct{}
}

func NewAuditService(repo LogStore, persistTimeout time.Duration) *AuditService {
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &AuditService{
		repo:    repo,
		timeout: persistTimeout,
		subs:    make(map[chan *model.AuditLog]struct{}),
	}
}

// Record persists entry with a bounded timeout. The caller's cancellation is
// detached so a client hanging up does not drop the record.
func (s *AuditService) Record(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}
	s.publish(entry)
	return nil
}

func (s *AuditService) List(ctx context.Context, filter model.LogFilter) ([]*model.AuditLog, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.Query(ctx, filter)
}

// Subscribe registers a live-tail listener. The returned func unsubscribes.
func (s *AuditService) Subscribe(buffer int) (<-chan *model.AuditLog, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *model.AuditLog, buffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *AuditService) publish(entry *model.AuditLog) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- entry:
		default:
			// 订阅者太慢，丢弃以保护主流程
			logger.Debug("audit subscriber lagging, dropping entry", "id", entry.ID)
		}
	}
}
