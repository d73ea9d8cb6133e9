package s3util

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	putErr  error
	key     string
	body    string
	ctype   string
	tagging string
	expires time.Duration
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.key = aws.ToString(in.Key)
	f.ctype = aws.ToString(in.ContentType)
	f.tagging = aws.ToString(in.Tagging)
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + aws.ToString(in.Bucket) + ".s3.example/" + aws.ToString(in.Key) + "?sig=x"}, nil
}

func TestPublish(t *testing.T) {
	fake := &fakeS3{}
	p := NewPublisher(fake, fake, "kitchen-results", "generated", 0)
	p.now = func() time.Time { return time.Date(2025, 4, 9, 23, 0, 0, 0, time.UTC) }

	url, err := p.Publish(context.Background(), "results", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(fake.key, "generated/results/2025/04/09/") || !strings.HasSuffix(fake.key, ".png") {
		t.Errorf("key = %q", fake.key)
	}
	if fake.body != "png-bytes" || fake.ctype != "image/png" {
		t.Errorf("uploaded %q as %q", fake.body, fake.ctype)
	}
	if fake.tagging != "Project=genai-kitchen" {
		t.Errorf("tagging = %q", fake.tagging)
	}
	if fake.expires != DefaultURLExpiry {
		t.Errorf("expiry = %v", fake.expires)
	}
	if !strings.Contains(url, fake.key) {
		t.Errorf("url %q does not reference key %q", url, fake.key)
	}
}

func TestPublishPutError(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("AccessDenied")}
	p := NewPublisher(fake, fake, "b", "", time.Minute)
	if _, err := p.Publish(context.Background(), "results", []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtForMIME(t *testing.T) {
	tests := map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/webp": ".webp",
		"image/gif":  ".gif",
		"text/plain": ".bin",
	}
	for in, want := range tests {
		if got := extForMIME(in); got != want {
			t.Errorf("extForMIME(%q) = %q, want %q", in, got, want)
		}
	}
}
