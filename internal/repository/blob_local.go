package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobStore writes archive blobs under a directory on disk.
type LocalBlobStore struct {
	root string
}

func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if strings.TrimSpace(root) == "" {
		root = "./archive"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &LocalBlobStore{root: abs}, nil
}

// Put refuses to replace an existing blob; the error then matches fs.ErrExist.
func (s *LocalBlobStore) Put(ctx context.Context, path string, data []byte, private bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(filepath.Clean("/"+path)))
	if !strings.HasPrefix(target, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob path %q escapes archive root", path)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	perm := os.FileMode(0o644)
	if private {
		perm = 0o600
	}
	// 先写临时文件再 rename，避免留下半个文件
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	// Link 在目标已存在时失败，不会覆盖已归档的 blob
	if err := os.Link(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store blob %q: %w", path, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}
