package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/snapshot"
)

const (
	firstLoadTimeout = 15 * time.Second
	steadyTimeout    = 9 * time.Second
)

// permanentError is a 403 with a typed code; the runtime stops polling and
// shows the blocker UI.
type permanentError struct {
	Code string
}

func (e *permanentError) Error() string { return "display rejected: " + e.Code }

// rateLimitError carries the server's Retry-After guidance.
type rateLimitError struct {
	RetryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

type statusResult struct {
	FetchRequired bool
	Revision      int64
	ServerTimeMS  int64
}

type snapshotResult struct {
	Doc          *snapshot.Document
	ETag         string
	NotModified  bool
	ServerTimeMS int64
}

// apiClient is the HTTP side of the display runtime.
type apiClient struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
}

func newAPIClient(baseURL, token, deviceID string) *apiClient {
	return &apiClient{
		baseURL:  baseURL,
		token:    token,
		deviceID: deviceID,
		http:     &http.Client{},
	}
}

// Status asks whether a full fetch is needed. rev is the last revision this
// client rendered.
func (a *apiClient) Status(ctx context.Context, rev int64) (*statusResult, error) {
	q := url.Values{}
	q.Set("v", strconv.FormatInt(rev, 10))
	q.Set("dk", a.deviceID)
	// Cache-buster: misconfigured intermediaries must never serve this.
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))

	resp, err := a.get(ctx, "/api/display/status/"+a.token+"/", q, "", steadyTimeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &statusResult{
		ServerTimeMS: headerInt(resp, "X-Server-Time-MS"),
		Revision:     headerInt(resp, "X-Schedule-Revision"),
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		return result, nil
	case http.StatusOK:
		var body struct {
			ScheduleRevision int64 `json:"schedule_revision"`
			FetchRequired    bool  `json:"fetch_required"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("status decode: %w", err)
		}
		result.FetchRequired = body.FetchRequired
		result.Revision = body.ScheduleRevision
		return result, nil
	default:
		return nil, a.failure(resp)
	}
}

// Snapshot fetches the full document. etag enables 304s; transition bypasses
// the edge cache during a period boundary; firstLoad relaxes the timeout.
func (a *apiClient) Snapshot(ctx context.Context, rev int64, etag string, transition, firstLoad bool) (*snapshotResult, error) {
	q := url.Values{}
	q.Set("rev", strconv.FormatInt(rev, 10))
	q.Set("dk", a.deviceID)
	if transition {
		q.Set("transition", "1")
	}

	timeout := steadyTimeout
	if firstLoad {
		timeout = firstLoadTimeout
		etag = "" // always take a full body on boot
	}

	resp, err := a.get(ctx, "/api/display/snapshot/"+a.token+"/", q, etag, timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &snapshotResult{
		ServerTimeMS: headerInt(resp, "X-Server-Time-MS"),
		ETag:         resp.Header.Get("ETag"),
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		result.NotModified = true
		return result, nil
	case http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("snapshot read: %w", err)
		}
		var doc snapshot.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("snapshot decode: %w", err)
		}
		result.Doc = &doc
		return result, nil
	default:
		return nil, a.failure(resp)
	}
}

func (a *apiClient) get(ctx context.Context, path string, q url.Values, etag string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the cancel to body close so callers keep the usual defer pattern.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// failure turns an error status into the typed error the runtime switches on.
func (a *apiClient) failure(resp *http.Response) error {
	defer io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusForbidden:
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Code == "" {
			body.Code = "screen_unknown"
		}
		return &permanentError{Code: body.Code}
	case http.StatusTooManyRequests:
		retry := 15 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 15 {
				retry = time.Duration(secs) * time.Second
			}
		}
		return &rateLimitError{RetryAfter: retry}
	default:
		return errors.New("server error: " + resp.Status)
	}
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func headerInt(resp *http.Response, name string) int64 {
	v, _ := strconv.ParseInt(resp.Header.Get(name), 10, 64)
	return v
}
