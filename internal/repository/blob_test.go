package repository

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalBlobStore(root)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "api-logs/batch.jsonl", []byte(`{"name":"a"}`), true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "file://"))

	target := filepath.Join(root, "api-logs", "batch.jsonl")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLocalBlobStoreRefusesOverwrite(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalBlobStore(root)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "api-logs/batch.jsonl", []byte("first"), true)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "api-logs/batch.jsonl", []byte("second"), true)
	require.ErrorIs(t, err, fs.ErrExist)

	data, err := os.ReadFile(filepath.Join(root, "api-logs", "batch.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	// 临时文件不残留
	entries, err := os.ReadDir(filepath.Join(root, "api-logs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalBlobStoreStaysInRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalBlobStore(filepath.Join(root, "archive"))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../../outside.jsonl", []byte("x"), false)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "archive", "outside.jsonl"))
	assert.NoError(t, err)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.body = string(b)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3BlobStorePut(t *testing.T) {
	api := &fakeS3{}
	store := NewS3BlobStoreWithAPI(api, "audit-bucket")

	ref, err := store.Put(context.Background(), "api-logs/batch.jsonl", []byte("line"), true)
	require.NoError(t, err)
	assert.Equal(t, "s3://audit-bucket/api-logs/batch.jsonl", ref)
	assert.Equal(t, "audit-bucket", *api.input.Bucket)
	assert.Equal(t, "api-logs/batch.jsonl", *api.input.Key)
	assert.Equal(t, types.ObjectCannedACLPrivate, api.input.ACL)
	assert.Equal(t, "line", api.body)
	assert.Equal(t, "*", *api.input.IfNoneMatch)
}

func TestS3BlobStoreExistingKey(t *testing.T) {
	precondition := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusPreconditionFailed}},
			Err:      errors.New("PreconditionFailed"),
		},
	}
	store := NewS3BlobStoreWithAPI(&fakeS3{err: precondition}, "audit-bucket")
	_, err := store.Put(context.Background(), "k", []byte("x"), true)
	require.ErrorIs(t, err, fs.ErrExist)
}

func TestS3BlobStorePutError(t *testing.T) {
	store := NewS3BlobStoreWithAPI(&fakeS3{err: errors.New("access denied")}, "audit-bucket")
	_, err := store.Put(context.Background(), "k", []byte("x"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.NotErrorIs(t, err, fs.ErrExist)
}
