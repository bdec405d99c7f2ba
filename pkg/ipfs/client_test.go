package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
)

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	t.Run("default_config", func(t *testing.T) {
		client, err := NewClient(Config{}, logger)
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if client.apiURL != "http://localhost:9094" {
			t.Errorf("Expected default API URL 'http://localhost:9094', got %s", client.apiURL)
		}
		if client.ipfsAPIURL != "http://localhost:5001" {
			t.Errorf("Expected default IPFS API URL 'http://localhost:5001', got %s", client.ipfsAPIURL)
		}
		if client.httpClient.Timeout != 60*time.Second {
			t.Errorf("Expected default timeout 60s, got %v", client.httpClient.Timeout)
		}
	})

	t.Run("custom_config", func(t *testing.T) {
		client, err := NewClient(Config{
			ClusterAPIURL: "http://custom:9094/",
			Timeout:       30 * time.Second,
		}, logger)
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if client.apiURL != "http://custom:9094" {
			t.Errorf("Expected API URL 'http://custom:9094', got %s", client.apiURL)
		}
		if client.httpClient.Timeout != 30*time.Second {
			t.Errorf("Expected timeout 30s, got %v", client.httpClient.Timeout)
		}
	})
}

func TestClient_Put(t *testing.T) {
	logger := zap.NewNop()

	t.Run("success_with_pin", func(t *testing.T) {
		payload := `{"doctorName":"Jane Doe","specialization":"Cardiology"}`
		pinned := false

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/add":
				if r.Method != "POST" {
					t.Errorf("Expected method POST, got %s", r.Method)
				}
				if r.URL.Query().Get("cid-version") != "1" {
					t.Errorf("Expected cid-version=1, got %q", r.URL.RawQuery)
				}
				file, header, err := r.FormFile("file")
				if err != nil {
					t.Errorf("Failed to get file: %v", err)
					return
				}
				defer file.Close()
				body, _ := io.ReadAll(file)
				if string(body) != payload {
					t.Errorf("Payload was modified: %q", body)
				}
				// NDJSON stream, last object wins.
				fmt.Fprintf(w, `{"name":"%s","cid":"bafyintermediate","size":1}`+"\n", header.Filename)
				fmt.Fprintf(w, `{"name":"%s","cid":"bafyfinal","size":999}`+"\n", header.Filename)
			case strings.HasPrefix(r.URL.Path, "/pins/"):
				pinned = true
				if r.URL.Path != "/pins/bafyfinal" {
					t.Errorf("Unexpected pin path %s", r.URL.Path)
				}
				if r.URL.Query().Get("replication-min") != "2" {
					t.Errorf("Expected replication-min=2, got %s", r.URL.Query().Get("replication-min"))
				}
				if r.URL.Query().Get("name") != "cert.json" {
					t.Errorf("Expected name=cert.json, got %s", r.URL.Query().Get("name"))
				}
				w.WriteHeader(http.StatusAccepted)
				w.Write([]byte(`{"cid":"bafyfinal","name":"cert.json"}`))
			default:
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: server.URL, ReplicationFactor: 2}, logger)
		cid, err := client.Put(context.Background(), []byte(payload), "cert.json")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if cid != "bafyfinal" {
			t.Errorf("Expected CID bafyfinal, got %s", cid)
		}
		if !pinned {
			t.Error("Expected explicit pin")
		}
	})

	t.Run("server_error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("cluster down"))
		}))
		defer server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: server.URL}, logger)
		_, err := client.Put(context.Background(), []byte("x"), "x.json")
		if !errors.IsBlobUnavailable(err) {
			t.Fatalf("Expected blob store unavailable, got %v", err)
		}
		if !errors.ShouldRetry(err) {
			t.Error("Expected unavailable error to be retryable")
		}
	})

	t.Run("empty_stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: server.URL}, logger)
		if _, err := client.Put(context.Background(), []byte("x"), "x.json"); !errors.IsBlobUnavailable(err) {
			t.Fatalf("Expected blob store unavailable, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: url, Timeout: time.Second}, logger)
		if _, err := client.Put(context.Background(), []byte("x"), "x.json"); !errors.IsBlobUnavailable(err) {
			t.Fatalf("Expected blob store unavailable, got %v", err)
		}
	})
}

func TestClient_Get(t *testing.T) {
	logger := zap.NewNop()

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/cat" {
				t.Errorf("Expected path '/api/v0/cat', got %s", r.URL.Path)
			}
			if r.URL.Query().Get("arg") != "bafytest" {
				t.Errorf("Expected arg=bafytest, got %s", r.URL.Query().Get("arg"))
			}
			w.Write([]byte(`{"activity":"walk"}`))
		}))
		defer server.Close()

		client, _ := NewClient(Config{IPFSAPIURL: server.URL}, logger)
		data, err := client.Get(context.Background(), "bafytest")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(data) != `{"activity":"walk"}` {
			t.Errorf("Unexpected content %q", data)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client, _ := NewClient(Config{IPFSAPIURL: server.URL}, logger)
		_, err := client.Get(context.Background(), "bafymissing")
		if !errors.IsBlobNotFound(err) {
			t.Fatalf("Expected blob not found, got %v", err)
		}
		if errors.ShouldRetry(err) {
			t.Error("Not found must not be retryable")
		}
	})

	t.Run("kubo_not_found_message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"Message":"block was not found locally (offline)","Code":0}`))
		}))
		defer server.Close()

		client, _ := NewClient(Config{IPFSAPIURL: server.URL}, logger)
		if _, err := client.Get(context.Background(), "bafymissing"); !errors.IsBlobNotFound(err) {
			t.Fatalf("Expected blob not found, got %v", err)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client, _ := NewClient(Config{IPFSAPIURL: server.URL}, logger)
		if _, err := client.Get(context.Background(), "bafytest"); !errors.IsBlobUnavailable(err) {
			t.Fatalf("Expected blob store unavailable, got %v", err)
		}
	})

	t.Run("too_large", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("0123456789"))
		}))
		defer server.Close()

		client, _ := NewClient(Config{IPFSAPIURL: server.URL, MaxFetchBytes: 4}, logger)
		_, err := client.Get(context.Background(), "bafybig")
		if err == nil || !errors.IsInternal(err) {
			t.Fatalf("Expected internal error for oversize payload, got %v", err)
		}
	})
}

func TestClient_Health(t *testing.T) {
	logger := zap.NewNop()

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/id" {
				t.Errorf("Expected path '/id', got %s", r.URL.Path)
			}
			w.Write([]byte(`{"id":"12D3KooW"}`))
		}))
		defer server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: server.URL}, logger)
		if err := client.Health(context.Background()); err != nil {
			t.Fatalf("Health failed: %v", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, _ := NewClient(Config{ClusterAPIURL: server.URL}, logger)
		if err := client.Health(context.Background()); err == nil {
			t.Fatal("Expected health check to fail")
		}
	})
}
