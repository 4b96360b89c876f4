package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the blob store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3BlobStore uploads archive blobs to an S3 compatible bucket.
type S3BlobStore struct {
	api    S3API
	bucket string
}

func NewS3BlobStore(ctx context.Context, cfg config.S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3BlobStoreWithAPI(client, cfg.Bucket), nil
}

func NewS3BlobStoreWithAPI(api S3API, bucket string) *S3BlobStore {
	return &S3BlobStore{api: api, bucket: bucket}
}

// Put is a conditional create. An existing key is reported as fs.ErrExist.
func (s *S3BlobStore) Put(ctx context.Context, path string, data []byte, private bool) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/x-ndjson"),
		IfNoneMatch:   aws.String("*"),
	}
	if private {
		input.ACL = types.ObjectCannedACLPrivate
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		if preconditionFailed(err) {
			return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, path, fs.ErrExist)
		}
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, path, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, path), nil
}

func preconditionFailed(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusPreconditionFailed
}
