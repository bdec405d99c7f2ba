package blobstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/carefolio/records/pkg/errors"
)

// S3Config holds S3 backend construction parameters.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; set for MinIO or other S3-compatible servers
	PathStyle bool
	Prefix    string // object key prefix
}

// S3Backend stores payloads in a single bucket under their CIDv1 address.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend creates an S3 backend using the default AWS credentials chain.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Retries are owned by Client.
		o.RetryMaxAttempts = 1
	})
	return newS3BackendWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3BackendWithClient(client *s3.Client, bucket, prefix string) *S3Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Backend) key(address string) string {
	return s.prefix + address
}

// Put uploads payload under its computed address. Re-uploading identical
// bytes overwrites the object with the same content.
func (s *S3Backend) Put(ctx context.Context, payload []byte, name string) (string, error) {
	address, err := ComputeAddress(payload)
	if err != nil {
		return "", errors.NewBlobUnavailableError("store", "", err)
	}
	key := s.key(address)
	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
	}
	if name != "" {
		input.Metadata = map[string]string{"name": name}
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", errors.NewBlobUnavailableError("store", address, err)
	}
	return address, nil
}

// Get downloads the object stored at address and checks it against the address.
func (s *S3Backend) Get(ctx context.Context, address string) ([]byte, error) {
	key := s.key(address)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.NewBlobNotFoundError(address, err)
		}
		return nil, errors.NewBlobUnavailableError("fetch", address, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewBlobUnavailableError("fetch", address, err)
	}
	ok, err := VerifyAddress(address, data)
	if err != nil {
		return nil, errors.NewBlobNotFoundError(address, err)
	}
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("object %s does not match its address", address), nil).WithOperation("fetch")
	}
	return data, nil
}

// Health checks that the bucket is reachable.
func (s *S3Backend) Health(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if stderrors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	if stderrors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
