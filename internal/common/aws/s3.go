// internal/common/aws/s3.go
package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"admissions-workers/internal/common/errors"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const s3Scheme = "s3://"

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store reads submitted documents and writes reports.
type S3Store struct {
	api           s3API
	presigner     presignAPI
	reportsBucket string
}

// NewS3Store builds the store from a shared AWS config. endpoint overrides the
// default resolver for S3-compatible stores and switches to path-style addressing.
func NewS3Store(cfg awssdk.Config, reportsBucket, endpoint string) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = awssdk.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		api:           client,
		presigner:     s3.NewPresignClient(client),
		reportsBucket: reportsBucket,
	}
}

// ParseReference splits s3://bucket/key. Anything else wraps ErrInvalidReference.
func ParseReference(ref string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, s3Scheme) {
		return "", "", fmt.Errorf("%w: %q is not an s3 uri", errors.ErrInvalidReference, ref)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket or key", errors.ErrInvalidReference, ref)
	}
	return bucket, key, nil
}

// Locator formats the opaque report locator for bucket and path.
func Locator(bucket, path string) string {
	return s3Scheme + bucket + "/" + path
}

// Get returns the object bytes. A missing object wraps ErrNotFound.
func (s *S3Store) Get(ctx context.Context, reference string) ([]byte, error) {
	bucket, key, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, reference)
		}
		return nil, fmt.Errorf("s3 get %s: %w", reference, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", reference, err)
	}
	return body, nil
}

// Put writes body to path in the reports bucket, replacing any existing object.
func (s *S3Store) Put(ctx context.Context, path string, body []byte, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awssdk.String(s.reportsBucket),
		Key:         awssdk.String(path),
		Body:        bytes.NewReader(body),
		ContentType: awssdk.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", path, err)
	}
	return Locator(s.reportsBucket, path), nil
}

// PresignGet resolves a locator to a URL valid for ttl.
func (s *S3Store) PresignGet(ctx context.Context, locator string, ttl time.Duration) (string, error) {
	bucket, key, err := ParseReference(locator)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", locator, err)
	}
	return req.URL, nil
}
