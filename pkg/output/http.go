package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"chairgate/pkg/codec"
	"chairgate/pkg/model"
)

const (
	DefaultForwardTimeout = 5 * time.Second

	// maxErrorBody caps how much of a rejected response is kept for logging.
	maxErrorBody = 4 << 10
)

// ForwardError reports a response from the collection endpoint other than
// 201 Created.
type ForwardError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// NameField is the JSON key for the record name in the request body.
	NameField string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

type forwardTarget struct {
	url     string
	headers map[string]string
}

// Forwarder POSTs one record per call to the collection endpoint.
// It never retries; the caller decides what a failure means.
type Forwarder struct {
	target atomic.Pointer[forwardTarget]
	client *http.Client
	codec  codec.Codec
}

func NewForwarder(cfg ForwarderConfig) *Forwarder {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultForwardTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	f := &Forwarder{
		client: client,
		codec:  codec.New(cfg.NameField),
	}
	f.SetTarget(cfg.URL, cfg.Headers)
	return f
}

// SetTarget swaps the endpoint URL and extra headers for subsequent calls.
func (f *Forwarder) SetTarget(url string, headers map[string]string) {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	f.target.Store(&forwardTarget{url: url, headers: copied})
}

// URL returns the current endpoint.
func (f *Forwarder) URL() string {
	return f.target.Load().url
}

// Write sends rec and returns nil only on 201 Created.
func (f *Forwarder) Write(ctx context.Context, rec model.Record) error {
	target := f.target.Load()

	body, err := f.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", target.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ForwardError{
			URL:        target.url,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(respBody)),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}
