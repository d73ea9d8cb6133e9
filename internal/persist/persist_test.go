package persist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fpang/genai-kitchen/internal/history"
	"github.com/fpang/genai-kitchen/internal/state"
)

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(strings.Repeat(`{"action":"style","next":{"style":"modern"}}`, 50))
	c := Compress(in)
	if len(c) >= len(in) {
		t.Errorf("compressed %d bytes to %d", len(in), len(c))
	}
	out, err := Decompress(c)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip mismatch")
	}
	if _, err := Decompress([]byte("not zstd")); err == nil {
		t.Error("expected error for invalid frame")
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"default", true},
		{"user-1.kitchen_a", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{".hidden", false},
		{strings.Repeat("x", 129), false},
	}
	for _, tt := range tests {
		if err := ValidateName(tt.name); (err == nil) != tt.valid {
			t.Errorf("ValidateName(%q) = %v, want valid=%v", tt.name, err, tt.valid)
		}
	}
}

func TestFileSink(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sink.Load(ctx, "ws"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing = %v, want ErrNotFound", err)
	}
	if err := sink.Save(ctx, "ws", []byte("one")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := sink.Save(ctx, "ws", []byte("two")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := sink.Load(ctx, "ws")
	if err != nil || string(got) != "two" {
		t.Errorf("Load = %q, %v", got, err)
	}
	if err := sink.Save(ctx, "../x", nil); err == nil {
		t.Error("expected invalid name error")
	}
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.types[*in.Bucket+"/"+*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	sink := NewS3Sink(fake, "kitchen-bucket", "history")

	if _, err := sink.Load(ctx, "ws"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing = %v, want ErrNotFound", err)
	}
	if err := sink.Save(ctx, "ws", []byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["kitchen-bucket/history/ws.json.zst"]; !ok {
		t.Errorf("object keys = %v", fake.objects)
	}
	if ct := fake.types["kitchen-bucket/history/ws.json.zst"]; ct != "application/zstd" {
		t.Errorf("content type = %q", ct)
	}
	got, err := sink.Load(ctx, "ws")
	if err != nil || string(got) != "payload" {
		t.Errorf("Load = %q, %v", got, err)
	}
}

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func itemKey(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "|" + key["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func TestDynamoSink(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	sink := NewDynamoSink(fake, "kitchen", time.Hour)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.now = func() time.Time { return now }

	if _, err := sink.Load(ctx, "ws"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing = %v, want ErrNotFound", err)
	}
	if err := sink.Save(ctx, "ws", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	item, ok := fake.items["WORKSPACE#ws|HISTORY"]
	if !ok {
		t.Fatalf("items = %v", fake.items)
	}
	exp, ok := item["expiresAt"].(*types.AttributeValueMemberN)
	if !ok || exp.Value != strconv.FormatInt(now.Add(time.Hour).Unix(), 10) {
		t.Errorf("expiresAt = %#v", item["expiresAt"])
	}

	got, err := sink.Load(ctx, "ws")
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Load = %v, %v", got, err)
	}
}

type workspace struct {
	Style string `json:"style"`
}

func TestPersisterAndRestore(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	store := history.New[workspace]()
	c := state.New(workspace{})
	c.Subscribe(history.NewRecorder(store))
	c.Subscribe(NewPersister[workspace](sink, "default", store))

	c.Set("style", workspace{Style: "modern"})
	c.Set("style", workspace{Style: "rustic"})

	restored := history.New[workspace]()
	ok, err := Restore(ctx, sink, "default", restored)
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v", ok, err)
	}
	entries := restored.Entries()
	if len(entries) != 2 || entries[1].Next.Style != "rustic" {
		t.Errorf("restored entries = %+v", entries)
	}

	ok, err = Restore(ctx, sink, "missing", history.New[workspace]())
	if ok || err != nil {
		t.Errorf("Restore missing = %v, %v", ok, err)
	}
}

func TestRestoreRejectsCorruptDocument(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Save(ctx, "bad", Compress([]byte("{not json"))); err != nil {
		t.Fatal(err)
	}
	if ok, err := Restore(ctx, sink, "bad", history.New[workspace]()); ok || err == nil {
		t.Errorf("Restore = %v, %v; want error", ok, err)
	}
}

type failingSink struct{}

func (failingSink) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func (failingSink) Load(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}

func TestPersisterSwallowsSaveErrors(t *testing.T) {
	store := history.New[workspace]()
	c := state.New(workspace{})
	c.Subscribe(history.NewRecorder(store))
	c.Subscribe(NewPersister[workspace](failingSink{}, "default", store))

	c.Set("style", workspace{Style: "modern"})
	if c.Get().Style != "modern" {
		t.Error("state update lost after persistence failure")
	}
}
