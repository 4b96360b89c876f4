package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type reported struct {
	stage string
	err   error
}

type captureReporter struct {
	mu    sync.Mutex
	calls []reported
}

func (r *captureReporter) Report(_ context.Context, stage string, err error, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reported{stage: stage, err: err})
}

func (r *captureReporter) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.stage)
	}
	return out
}

type failingStore struct {
	*MemoryLogStore
	insertErr error
}

func (s *failingStore) Insert(ctx context.Context, entry *model.AuditLog) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryLogStore.Insert(ctx, entry)
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	puts  int
	inTx  bool
	err   error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (b *memBlobStore) Put(ctx context.Context, path string, data []byte, _ bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		b.inTx = true
	}
	if b.err != nil {
		return "", b.err
	}
	if _, ok := b.blobs[path]; ok {
		return "", fmt.Errorf("blob %s: %w", path, fs.ErrExist)
	}
	b.blobs[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

type countingNotifier struct {
	mu       sync.Mutex
	sent     int
	subjects []string
	bodies   []string
	err      error
}

func (n *countingNotifier) Send(_ context.Context, _ []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return n.err
}

var errBackendDown = errors.New("backend down")

func enabledSettings() *model.AuditSettings {
	return &model.AuditSettings{
		ID:                   1,
		Enabled:              true,
		MaskFields:           []string{"password", "api_secret"},
		MaxResponsePreviewKB: 4,
		FailureWindowMinutes: 5,
		FailureThreshold:     10,
		AlertCooldownMinutes: 30,
		AlertEmails:          "ops@example.com",
	}
}

func apiCall(method string) *Call {
	h := http.Header{}
	h.Set("Authorization", "token key:secret")
	return &Call{
		Path:       "/api/method/" + method,
		HTTPMethod: http.MethodPost,
		ClientIP:   "10.0.0.1",
		Headers:    h,
		Form:       map[string]any{"symbol": "BTC", "password": "hunter2"},
		Principal:  &model.Principal{User: "alice@example.com", Roles: []string{"Trader", "Auditor"}},
	}
}

func seedLog(store LogStore, id string, at time.Time, status string) {
	_ = store.Insert(context.Background(), &model.AuditLog{
		ID:         id,
		CreatedAt:  at,
		Method:     "orders.create",
		User:       "alice@example.com",
		Status:     status,
		StatusCode: 200,
	})
}
