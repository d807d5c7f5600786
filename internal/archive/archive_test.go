package archive

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/haojie06/imagen-http/internal/model"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type fakeUploader struct {
	mu      sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	metadata map[string]map[string]string
	err      error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string][]byte{}, types: map[string]string{}, metadata: map[string]map[string]string{}}
}

func (f *fakeUploader) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*params.Key] = data
	f.types[*params.Key] = *params.ContentType
	f.metadata[*params.Key] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func testGeneration(id string) model.Generation {
	return model.Generation{
		ID:        id,
		Prompt:    "a red fox",
		Image:     model.ImageResponse{B64JSON: base64.StdEncoding.EncodeToString(pngHeader)},
		CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC).Unix(),
	}
}

func TestUpload(t *testing.T) {
	uploader := newFakeUploader()
	a := New(uploader, Config{Bucket: "bucket", Prefix: "generations/"})
	defer a.Close()

	key, err := a.Upload(context.Background(), testGeneration("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "generations/2026/10/19/abc.png" {
		t.Fatalf("key = %s", key)
	}
	if uploader.types[key] != "image/png" || string(uploader.objects[key]) != string(pngHeader) {
		t.Fatal("object stored with wrong content")
	}
}

func TestUploadError(t *testing.T) {
	uploader := newFakeUploader()
	uploader.err = errors.New("access denied")
	a := New(uploader, Config{Bucket: "bucket"})
	defer a.Close()
	if _, err := a.Upload(context.Background(), testGeneration("abc")); err == nil {
		t.Fatal("expected the upload error")
	}
}

func TestSubmitDrainsOnClose(t *testing.T) {
	uploader := newFakeUploader()
	a := New(uploader, Config{Bucket: "bucket", Workers: 2, QueueSize: 8})
	for _, id := range []string{"a", "b", "c"} {
		if !a.Submit(testGeneration(id)) {
			t.Fatalf("submit %s rejected", id)
		}
	}
	a.Close()
	if uploader.count() != 3 {
		t.Fatalf("expected 3 uploads, got %d", uploader.count())
	}
}

func TestObjectKeyExtension(t *testing.T) {
	g := testGeneration("x")
	if got := ObjectKey("", g, "image/jpeg"); got != "2026/10/19/x.jpg" {
		t.Fatalf("got %s", got)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty bucket must disable archiving")
	}
}

func TestUploadEscapesPromptMetadata(t *testing.T) {
	uploader := newFakeUploader()
	a := New(uploader, Config{Bucket: "bucket"})
	defer a.Close()

	g := testGeneration("unicode")
	g.Prompt = "一只红色的狐狸 in the snow"
	key, err := a.Upload(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	prompt := uploader.metadata[key]["prompt"]
	for i := 0; i < len(prompt); i++ {
		if prompt[i] < 0x20 || prompt[i] > 0x7e {
			t.Fatalf("metadata is not printable ascii: %q", prompt)
		}
	}
	if decoded, err := url.QueryUnescape(prompt); err != nil || decoded != g.Prompt {
		t.Fatalf("decoded prompt = %q, %v", decoded, err)
	}
}

func TestMetadataValueLimit(t *testing.T) {
	long := strings.Repeat("狐", 200)
	got := metadataValue(long, 100)
	if len(got) > 100 {
		t.Fatalf("len = %d", len(got))
	}
	decoded, err := url.QueryUnescape(got)
	if err != nil {
		t.Fatalf("cut inside an escape sequence: %v", err)
	}
	if !utf8.ValidString(decoded) || decoded != strings.Repeat("狐", 11) {
		t.Fatalf("decoded = %q", decoded)
	}
	if metadataValue("a red fox", 1024) != "a+red+fox" {
		t.Fatalf("ascii prompt = %q", metadataValue("a red fox", 1024))
	}
}
