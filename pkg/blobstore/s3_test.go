package blobstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/carefolio/records/pkg/errors"
)

// fakeS3 is an in-memory S3 object API behind an http.RoundTripper.
type fakeS3 struct {
	mu          sync.Mutex
	objects     map[string][]byte
	unavailable bool
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return respond(http.StatusServiceUnavailable, `<Error><Code>SlowDown</Code><Message>busy</Message></Error>`), nil
	}

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		return respond(http.StatusOK, ""), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`), nil
		}
		return respond(http.StatusOK, string(body)), nil
	case http.MethodHead:
		return respond(http.StatusOK, ""), nil
	}
	return respond(http.StatusNotImplemented, ""), nil
}

func respond(status int, body string) *http.Response {
	h := http.Header{}
	if body != "" && strings.HasPrefix(body, "<") {
		h.Set("Content-Type", "application/xml")
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

func newTestS3Backend(t *testing.T, prefix string) (*S3Backend, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatal(err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RetryMaxAttempts = 1
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return newS3BackendWithClient(client, "records", prefix), fake
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip under computed address", func(t *testing.T) {
		b, fake := newTestS3Backend(t, "payloads")
		payload := []byte(`{"activity":"cycling","minutes":45}`)

		addr, err := b.Put(ctx, payload, "log.json")
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want, _ := ComputeAddress(payload)
		if addr != want {
			t.Errorf("address = %s, want %s", addr, want)
		}
		if _, ok := fake.objects["payloads/"+addr]; !ok {
			t.Errorf("object not stored under prefixed key, have %v", fake.objects)
		}

		got, err := b.Get(ctx, addr)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("got %q, want %q", got, payload)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		b, _ := newTestS3Backend(t, "")
		addr, _ := ComputeAddress([]byte("absent"))
		if _, err := b.Get(ctx, addr); !errors.IsBlobNotFound(err) {
			t.Fatalf("expected blob not found, got %v", err)
		}
	})

	t.Run("tampered object", func(t *testing.T) {
		b, fake := newTestS3Backend(t, "")
		addr, _ := b.Put(ctx, []byte("original"), "")
		fake.objects[addr] = []byte("changed")
		if _, err := b.Get(ctx, addr); !errors.IsInternal(err) {
			t.Fatalf("expected integrity failure, got %v", err)
		}
	})

	t.Run("service unavailable", func(t *testing.T) {
		b, fake := newTestS3Backend(t, "")
		fake.unavailable = true
		_, err := b.Put(ctx, []byte("x"), "")
		if !errors.IsBlobUnavailable(err) {
			t.Fatalf("expected blob store unavailable, got %v", err)
		}
	})
}
