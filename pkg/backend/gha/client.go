package gha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client speaks the GitHub Actions cache HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a cache API client. baseURL is the runtime-provided
// ACTIONS_CACHE_URL value, token the runtime token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // uploads of large closures are slow
		},
	}
}

// reserveRequest asks the cache service to allocate an entry for a key.
type reserveRequest struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

type reserveResponse struct {
	CacheID int64 `json:"cacheId"`
}

type commitRequest struct {
	Size int64 `json:"size"`
}

// Reserve allocates a cache entry and returns its id. A conflict (the key is
// already cached) is reported as errAlreadyCached.
func (c *Client) Reserve(ctx context.Context, key, version string) (int64, error) {
	var resp reserveResponse
	status, err := c.do(ctx, http.MethodPost, "/caches", reserveRequest{Key: key, Version: version}, &resp)
	if err != nil {
		return 0, err
	}
	if status == http.StatusConflict {
		return 0, errAlreadyCached
	}
	if resp.CacheID == 0 {
		return 0, fmt.Errorf("cache service returned no cache id for key %q", key)
	}
	return resp.CacheID, nil
}

// Upload sends the archive body for a reserved cache entry.
func (c *Client) Upload(ctx context.Context, cacheID int64, body []byte) error {
	url := fmt.Sprintf("%s/caches/%d", c.baseURL, cacheID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/*", len(body)-1))
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	return nil
}

// Commit finalizes a cache entry after its content is uploaded.
func (c *Client) Commit(ctx context.Context, cacheID int64, size int64) error {
	path := fmt.Sprintf("/caches/%d", cacheID)
	status, err := c.do(ctx, http.MethodPost, path, commitRequest{Size: size}, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("commit failed with status %d", status)
	}
	return nil
}

// do performs a JSON request and decodes the response if result is non-nil.
// The HTTP status is returned so callers can special-case statuses that are
// not errors (409 on reserve).
func (c *Client) do(ctx context.Context, method, path string, body, result any) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json;api-version=6.0-preview.1")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return resp.StatusCode, fmt.Errorf("cache service returned status %d: %s",
			resp.StatusCode, readErrorBody(resp.Body))
	}

	if result != nil && resp.StatusCode != http.StatusConflict {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// readErrorBody reads a bounded amount of an error response for diagnostics.
func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(bytes.TrimSpace(data))
}
