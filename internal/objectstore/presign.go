package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPresignTTL is the upload-URL lifetime.
const DefaultPresignTTL = 600 * time.Second

// Presigner is the narrow surface the core consumes from the object
// store: presigned PUT generation and public URL resolution by key.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

// S3Presigner implements Presigner over an S3Store.
type S3Presigner struct {
	store         *S3Store
	presign       *s3.PresignClient
	publicBaseURL string
}

// NewS3Presigner wraps an S3Store. publicBaseURL is the CDN or bucket base
// public keys resolve under.
func NewS3Presigner(store *S3Store, publicBaseURL string) *S3Presigner {
	return &S3Presigner{
		store:         store,
		presign:       s3.NewPresignClient(store.client),
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// PresignPut returns a presigned PUT URL bound to the content type; ttl <= 0
// means the 600 s default.
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	out, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.store.bucket),
		Key:         aws.String(p.store.fullKey(key)),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put %q: %w", key, err)
	}
	return out.URL, nil
}

// PublicURL resolves a stored key to its public address.
func (p *S3Presigner) PublicURL(key string) string {
	return p.publicBaseURL + "/" + p.store.fullKey(key)
}

// MemoryPresigner is the test fake: deterministic URLs, no signing.
type MemoryPresigner struct {
	Base string
}

func (m *MemoryPresigner) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return m.Base + "/upload/" + key, nil
}

func (m *MemoryPresigner) PublicURL(key string) string {
	return m.Base + "/" + key
}
