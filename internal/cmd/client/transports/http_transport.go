package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// HTTPTransport implements StreamsTransport against the JSON gateway.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport constructs an HTTPTransport. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Status  string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http error: %s: %s", e.Status, e.Message)
	}
	return "http error: " + e.Status
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	u := t.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Status: resp.Status, Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Append posts records to /v1/streams/append.
func (t *HTTPTransport) Append(ctx context.Context, name string, recs []Record) (AppendResult, error) {
	var out AppendResult
	err := t.do(ctx, http.MethodPost, "/v1/streams/append", nil, map[string]any{"name": name, "records": recs}, &out)
	return out, err
}

// Fetch reads records via /v1/streams/fetch.
func (t *HTTPTransport) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	q := url.Values{}
	q.Set("name", req.Name)
	q.Set("start", strconv.FormatInt(req.Start, 10))
	if req.End > 0 {
		q.Set("end", strconv.FormatInt(req.End, 10))
	}
	if req.MaxBytes > 0 {
		q.Set("max_bytes", strconv.Itoa(req.MaxBytes))
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	var out FetchResult
	err := t.do(ctx, http.MethodGet, "/v1/streams/fetch", q, nil, &out)
	return out, err
}

// Trim drops records below startOffset.
func (t *HTTPTransport) Trim(ctx context.Context, name string, startOffset int64) (StreamInfo, error) {
	var out StreamInfo
	err := t.do(ctx, http.MethodPost, "/v1/streams/trim", nil, map[string]any{"name": name, "start_offset": startOffset}, &out)
	return out, err
}

// Describe returns the stream state.
func (t *HTTPTransport) Describe(ctx context.Context, name string) (StreamInfo, error) {
	var out StreamInfo
	err := t.do(ctx, http.MethodGet, "/v1/streams/describe", url.Values{"name": {name}}, nil, &out)
	return out, err
}

// WarmUp creates the stream without appending.
func (t *HTTPTransport) WarmUp(ctx context.Context, name string) (StreamInfo, error) {
	var out StreamInfo
	err := t.do(ctx, http.MethodPost, "/v1/streams/warmup", nil, map[string]string{"name": name}, &out)
	return out, err
}

// Destroy deletes the stream.
func (t *HTTPTransport) Destroy(ctx context.Context, name string) error {
	return t.do(ctx, http.MethodPost, "/v1/streams/destroy", nil, map[string]string{"name": name}, nil)
}

// List returns streams matching prefix.
func (t *HTTPTransport) List(ctx context.Context, prefix string) (json.RawMessage, error) {
	var out json.RawMessage
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	err := t.do(ctx, http.MethodGet, "/v1/streams", q, nil, &out)
	return out, err
}

// BreakerStatus returns the creation gate status.
func (t *HTTPTransport) BreakerStatus(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := t.do(ctx, http.MethodGet, "/v1/controller/breaker", nil, nil, &out)
	return out, err
}

// UpdateGroup posts a binary request. A 400 still carries an encoded
// response, which is returned together with the status error.
func (t *HTTPTransport) UpdateGroup(ctx context.Context, raw []byte, version int16) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL()+"/v1/groups/update", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Api-Version", strconv.Itoa(int(version)))
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return body, &StatusError{Status: resp.Status, Code: resp.StatusCode}
	}
	return body, nil
}
