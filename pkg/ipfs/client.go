package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
)

// IPFSClient defines the IPFS operations the blob store needs.
type IPFSClient interface {
	Add(ctx context.Context, reader io.Reader, name string) (*AddResponse, error)
	Pin(ctx context.Context, cid string, name string, replicationFactor int) (*PinResponse, error)
	Cat(ctx context.Context, cid string) (io.ReadCloser, error)
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// Client wraps the IPFS Cluster HTTP API for payload storage and the
// IPFS node API for retrieval.
type Client struct {
	apiURL            string
	ipfsAPIURL        string
	replicationFactor int
	maxFetchBytes     int64
	httpClient        *http.Client
	logger            *zap.Logger
}

// Config holds configuration for the IPFS client
type Config struct {
	// ClusterAPIURL is the base URL for IPFS Cluster HTTP API (e.g., "http://localhost:9094")
	// If empty, defaults to "http://localhost:9094"
	ClusterAPIURL string

	// IPFSAPIURL is the base URL of the IPFS node API used for cat.
	// If empty, defaults to "http://localhost:5001"
	IPFSAPIURL string

	// ReplicationFactor pins each added payload on this many peers. Zero skips the explicit pin.
	ReplicationFactor int

	// MaxFetchBytes caps the size of a fetched payload. If zero, defaults to 32 MiB.
	MaxFetchBytes int64

	// Timeout is the timeout for client operations
	// If zero, defaults to 60 seconds
	Timeout time.Duration
}

// AddResponse represents the response from adding content to IPFS
type AddResponse struct {
	Name string `json:"name"`
	Cid  string `json:"cid"`
	Size int64  `json:"size"`
}

// PinResponse represents the response from pinning a CID
type PinResponse struct {
	Cid  string `json:"cid"`
	Name string `json:"name"`
}

// statusError carries a non-2xx response so callers can classify it.
type statusError struct {
	op     string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.op, e.status, e.body)
}

// NewClient creates a new IPFS Cluster client wrapper
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	apiURL := cfg.ClusterAPIURL
	if apiURL == "" {
		apiURL = "http://localhost:9094"
	}
	ipfsAPIURL := cfg.IPFSAPIURL
	if ipfsAPIURL == "" {
		ipfsAPIURL = "http://localhost:5001"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxFetch := cfg.MaxFetchBytes
	if maxFetch <= 0 {
		maxFetch = 32 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiURL:            strings.TrimRight(apiURL, "/"),
		ipfsAPIURL:        strings.TrimRight(ipfsAPIURL, "/"),
		replicationFactor: cfg.ReplicationFactor,
		maxFetchBytes:     maxFetch,
		httpClient:        &http.Client{Timeout: timeout},
		logger:            logger,
	}, nil
}

// Health checks if the IPFS Cluster API is healthy
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiURL+"/id", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// Add adds content to IPFS and returns the CID
func (c *Client) Add(ctx context.Context, reader io.Reader, name string) (*AddResponse, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to copy data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Raw leaves with CIDv1 keep the address stable for the exact bytes we send.
	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/add?cid-version=1&raw-leaves=true", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create add request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("add request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{op: "add", status: resp.StatusCode, body: string(body)}
	}

	// IPFS Cluster streams NDJSON. Drain the whole stream so the cluster
	// finishes pinning, and keep the last object.
	dec := json.NewDecoder(resp.Body)
	var last AddResponse
	var hasResult bool
	for {
		var chunk AddResponse
		if err := dec.Decode(&chunk); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode add response: %w", err)
		}
		last = chunk
		hasResult = true
	}

	if !hasResult || last.Cid == "" {
		return nil, fmt.Errorf("add response missing CID")
	}
	if last.Name == "" {
		last.Name = name
	}
	last.Size = int64(len(data))

	return &last, nil
}

// Pin pins a CID with specified replication factor.
// IPFS Cluster expects pin options (including name) as query parameters, not in JSON body
func (c *Client) Pin(ctx context.Context, cid string, name string, replicationFactor int) (*PinResponse, error) {
	values := url.Values{}
	values.Set("replication-min", fmt.Sprintf("%d", replicationFactor))
	values.Set("replication-max", fmt.Sprintf("%d", replicationFactor))
	if name != "" {
		values.Set("name", name)
	}
	reqURL := c.apiURL + "/pins/" + url.PathEscape(cid) + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pin request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{op: "pin", status: resp.StatusCode, body: string(body)}
	}

	var result PinResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode pin response: %w", err)
	}
	if result.Name == "" {
		result.Name = name
	}
	if result.Cid == "" {
		result.Cid = cid
	}
	return &result, nil
}

// Cat streams the content of a CID from the IPFS node API.
func (c *Client) Cat(ctx context.Context, cid string) (io.ReadCloser, error) {
	reqURL := fmt.Sprintf("%s/api/v0/cat?arg=%s", c.ipfsAPIURL, url.QueryEscape(cid))
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cat request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cat request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &statusError{op: "cat", status: resp.StatusCode, body: string(body)}
	}

	return resp.Body, nil
}

// Put stores payload verbatim and returns its CID. Any failure is reported
// as a blob store unavailable error.
func (c *Client) Put(ctx context.Context, payload []byte, name string) (string, error) {
	added, err := c.Add(ctx, bytes.NewReader(payload), name)
	if err != nil {
		return "", errors.NewBlobUnavailableError("add", "", err)
	}

	if c.replicationFactor > 0 {
		if _, err := c.Pin(ctx, added.Cid, name, c.replicationFactor); err != nil {
			return "", errors.NewBlobUnavailableError("pin", added.Cid, err)
		}
	}

	c.logger.Debug("Stored payload",
		zap.String("cid", added.Cid),
		zap.String("name", name),
		zap.Int64("size", added.Size))
	return added.Cid, nil
}

// Get fetches the payload stored under cid.
func (c *Client) Get(ctx context.Context, cid string) ([]byte, error) {
	body, err := c.Cat(ctx, cid)
	if err != nil {
		return nil, classifyFetch(cid, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, c.maxFetchBytes+1))
	if err != nil {
		return nil, errors.NewBlobUnavailableError("fetch", cid, err)
	}
	if int64(len(data)) > c.maxFetchBytes {
		return nil, errors.NewInternalError(
			fmt.Sprintf("payload %s exceeds %d bytes", cid, c.maxFetchBytes), nil).WithOperation("fetch")
	}
	return data, nil
}

// Close releases idle connections.
func (c *Client) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func classifyFetch(cid string, err error) error {
	var se *statusError
	if stderrors.As(err, &se) {
		if se.status == http.StatusNotFound {
			return errors.NewBlobNotFoundError(cid, err)
		}
		// Kubo reports unknown or unparsable paths as a 500 with a message body.
		if se.status == http.StatusInternalServerError {
			msg := strings.ToLower(se.body)
			if strings.Contains(msg, "not found") || strings.Contains(msg, "invalid path") {
				return errors.NewBlobNotFoundError(cid, err)
			}
		}
	}
	return errors.NewBlobUnavailableError("fetch", cid, err)
}
