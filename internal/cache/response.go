package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Response is an immutable snapshot of an HTTP response: status, headers
// and full body at time of capture.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	CapturedAt time.Time
}

// Key canonicalizes a request into its cache key: method plus URL with the
// fragment stripped. Only GET requests are ever cached, but the method is
// kept in the key so snapshots are self-describing.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return req.Method + " " + u.String()
}

// Capture drains resp.Body into a snapshot and replaces the body with a
// fresh reader so the caller can still stream the response to the client.
func Capture(resp *http.Response) (*Response, error) {
	body, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now(),
	}, nil
}

// HTTPResponse materializes the snapshot as a servable *http.Response for
// the given request.
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    r.StatusCode,
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// ContentType returns the snapshot's Content-Type header value.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// encodeHeader serializes headers for storage.
func encodeHeader(h http.Header) (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode headers: %w", err)
	}
	return string(b), nil
}

// decodeHeader restores headers from storage. A corrupt value yields an
// empty header set rather than a failed cache read.
func decodeHeader(s string) http.Header {
	if strings.TrimSpace(s) == "" {
		return http.Header{}
	}
	var h http.Header
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return http.Header{}
	}
	return h
}
