package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/google/uuid"
)

const (
	pullPath     = "/sync/pull"
	maxErrorBody = 512
)

// HTTPClient implements Client over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  logging.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger logging.Logger) *HTTPClient {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger.With("component", "remote"),
	}
}

func entityPath(endpoint string, id int64) string {
	return strings.TrimRight(endpoint, "/") + "/" + strconv.FormatInt(id, 10)
}

func (c *HTTPClient) Create(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, endpoint, nil, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Update(ctx context.Context, endpoint string, id int64, payload map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPut, entityPath(endpoint, id), nil, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, endpoint string, id int64) error {
	return c.do(ctx, http.MethodDelete, entityPath(endpoint, id), nil, nil, nil)
}

// List fetches a collection. The body may be a bare array or an object with
// an "items" array.
func (c *HTTPClient) List(ctx context.Context, endpoint string, query url.Values) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, query, nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []map[string]any
	if raw[0] == '{' {
		var wrapped struct {
			Items []map[string]any `json:"items"`
		}
		if err := decode(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return wrapped.Items, nil
	}
	if err := decode(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return items, nil
}

func (c *HTTPClient) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	body := map[string]any{"azienda_id": req.AziendaID}
	if req.UpdatedAfter != nil {
		body["updated_after"] = req.UpdatedAfter.UTC().Format(time.RFC3339Nano)
	}
	var out PullResponse
	if err := c.do(ctx, http.MethodPost, pullPath, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeaderName, requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := AccessToken(ctx); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "remote call", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := decode(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
