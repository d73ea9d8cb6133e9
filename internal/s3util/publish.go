// Package s3util stores generated kitchen images in S3 and hands out
// presigned GET URLs for them.
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultURLExpiry is how long a presigned result URL stays valid.
const DefaultURLExpiry = time.Hour

// ObjectPutter is the part of *s3.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// URLPresigner is the part of *s3.PresignClient used for downloads.
type URLPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Publisher uploads images under a prefix and returns presigned URLs.
type Publisher struct {
	client    ObjectPutter
	presigner URLPresigner
	bucket    string
	prefix    string
	expiry    time.Duration
	now       func() time.Time
}

// NewPublisher creates a Publisher. An expiry <= 0 uses DefaultURLExpiry.
func NewPublisher(client ObjectPutter, presigner URLPresigner, bucket, prefix string, expiry time.Duration) *Publisher {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	return &Publisher{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		expiry:    expiry,
		now:       time.Now,
	}
}

// Bucket returns the target bucket name.
func (p *Publisher) Bucket() string {
	return p.bucket
}

// ObjectKey builds <prefix>/<kind>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (p *Publisher) ObjectKey(kind, mimeType string) string {
	now := p.now().UTC()
	name := uuid.NewString() + extForMIME(mimeType)
	return path.Join(p.prefix, kind, now.Format("2006/01/02"), name)
}

// Publish uploads data and returns a presigned GET URL for it.
func (p *Publisher) Publish(ctx context.Context, kind string, data []byte, mimeType string) (string, error) {
	key := p.ObjectKey(kind, mimeType)
	if err := p.Put(ctx, key, data, mimeType); err != nil {
		return "", err
	}
	url, err := GeneratePresignedURL(ctx, p.presigner, p.bucket, key, p.expiry)
	if err != nil {
		return "", err
	}
	return url, nil
}

// Put uploads data under key with the project tag.
func (p *Publisher) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	log.Debug().
		Str("bucket", p.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading image to S3")

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &mimeType,
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Info().Str("key", key).Msg("Image uploaded to S3")
	return nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presigner URLPresigner, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

func extForMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
