package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/closetd/closet/internal/store"
)

const defaultRequestTimeout = 30 * time.Second

// Client speaks the closet sync protocol: JSON rows over REST plus a blob
// endpoint, authenticated with a bearer token. It implements Store and
// BlobStore.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Online probes the server's health endpoint with a short timeout. Used by
// the sync engine as its connectivity check.
func (c *Client) Online() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Upsert implements Store.
func (c *Client) Upsert(ctx context.Context, row Row) error {
	path := fmt.Sprintf("/v1/sync/%s", row.Table())
	if err := c.do(ctx, http.MethodPut, path, row, nil); err != nil {
		return fmt.Errorf("failed to upsert %s row: %w", row.Table(), err)
	}
	return nil
}

// MarkDeleted implements Store. The server sets deleted_at rather than
// removing the row.
func (c *Client) MarkDeleted(ctx context.Context, table store.Table, ownerID, id string) error {
	path := fmt.Sprintf("/v1/sync/%s/%s", table, url.PathEscape(id))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to mark %s/%s deleted: %w", table, id, err)
	}
	return nil
}

// PullSince implements Store. Rows come back ordered ascending by
// (server_updated_at, id), strictly after the cursor.
func (c *Client) PullSince(ctx context.Context, table store.Table, ownerID string, cursor Cursor, limit int) ([]Row, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if !cursor.IsZero() {
		query.Set("after", cursor.ServerUpdatedAt.UTC().Format(time.RFC3339Nano))
		query.Set("after_id", cursor.ID)
	}

	path := fmt.Sprintf("/v1/sync/%s?%s", table, query.Encode())
	var payload struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to pull %s changes: %w", table, err)
	}

	rows := make([]Row, 0, len(payload.Rows))
	for _, raw := range payload.Rows {
		row, err := decodeRow(table, raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// PhotoStoragePath implements Store.
func (c *Client) PhotoStoragePath(ctx context.Context, ownerID, id string) (string, error) {
	path := fmt.Sprintf("/v1/sync/photos/%s/storage-path", url.PathEscape(id))
	var payload struct {
		StoragePath string `json:"storage_path"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return "", fmt.Errorf("failed to look up photo storage path: %w", err)
	}
	return payload.StoragePath, nil
}

// PhotoStoragePaths implements Store.
func (c *Client) PhotoStoragePaths(ctx context.Context, ownerID string) ([]string, error) {
	var payload struct {
		StoragePaths []string `json:"storage_paths"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sync/photos/storage-paths", nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list photo storage paths: %w", err)
	}
	return payload.StoragePaths, nil
}

// DeleteAll implements Store.
func (c *Client) DeleteAll(ctx context.Context, table store.Table, ownerID string) error {
	path := fmt.Sprintf("/v1/sync/%s", table)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete all %s rows: %w", table, err)
	}
	return nil
}

// Put implements BlobStore.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPut, "/v1/blobs/"+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.send(req, nil); err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", path, err)
	}
	return nil
}

// Get implements BlobStore.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/blobs/"+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", path, err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	return data, nil
}

// Remove implements BlobStore.
func (c *Client) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	body := struct {
		Paths []string `json:"paths"`
	}{Paths: paths}

	if err := c.do(ctx, http.MethodPost, "/v1/blobs/remove", body, nil); err != nil {
		return fmt.Errorf("failed to remove blobs: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote returned status %d: %s", resp.StatusCode, body)
	}
}

func decodeRow(table store.Table, raw json.RawMessage) (Row, error) {
	var row Row
	var err error

	switch table {
	case store.TableCategories:
		var r CategoryRow
		err = json.Unmarshal(raw, &r)
		row = r
	case store.TableItems:
		var r ItemRow
		err = json.Unmarshal(raw, &r)
		row = r
	case store.TableOutfits:
		var r OutfitRow
		err = json.Unmarshal(raw, &r)
		row = r
	case store.TableStatusLogs:
		var r StatusLogRow
		err = json.Unmarshal(raw, &r)
		row = r
	case store.TablePhotos:
		var r PhotoRow
		err = json.Unmarshal(raw, &r)
		row = r
	default:
		return nil, fmt.Errorf("unsupported sync table: %s", table)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return row, nil
}
