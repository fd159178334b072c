// Package enhance wraps the optional post-processing filter applied to
// recording artifacts before upload. The filter is best-effort by contract:
// callers fall back to the original bytes on any failure.
package enhance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Enhancer transforms raw recording bytes. Implementations must be safe to
// call concurrently.
type Enhancer interface {
	Enhance(ctx context.Context, data []byte, contentType string) ([]byte, error)
}

const requestTimeout = 60 * time.Second

// HTTPEnhancer posts the artifact to an external filter service and returns
// the transformed bytes.
type HTTPEnhancer struct {
	url    string
	client *http.Client
}

func NewHTTPEnhancer(url string) *HTTPEnhancer {
	return &HTTPEnhancer{
		url: url,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (e *HTTPEnhancer) Enhance(ctx context.Context, data []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enhance request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("enhance failed with status %d", resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read enhanced artifact: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("enhancer returned empty artifact")
	}

	return out, nil
}
