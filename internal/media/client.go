// Package media talks to the remote media control server that owns the actual
// audio/video streams. Every method here is a plain REST round-trip; the
// recording orchestrator decides which failures matter.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
)

// Controller is the media control collaborator.
type Controller interface {
	CreateStream(ctx context.Context, streamID string, record bool) error
	StopStream(ctx context.Context, streamID string) error
	DeleteStream(ctx context.Context, streamID string) error
	DownloadArtifact(ctx context.Context, streamID, name string) ([]byte, error)
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type createStreamRequest struct {
	Name   string `json:"name"`
	Record bool   `json:"record"`
}

func (c *Client) CreateStream(ctx context.Context, streamID string, record bool) error {
	body, err := json.Marshal(createStreamRequest{Name: streamID, Record: record})
	if err != nil {
		return fmt.Errorf("marshal create stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/streams", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, "create stream")
}

func (c *Client) StopStream(ctx context.Context, streamID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/streams/%s/stop", c.baseURL, streamID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	return c.do(req, "stop stream")
}

func (c *Client) DeleteStream(ctx context.Context, streamID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/streams/%s", c.baseURL, streamID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	return c.do(req, "delete stream")
}

// DownloadArtifact fetches one finalized recording file by name. A 404 comes
// back as a NOT_FOUND AppError so the caller can keep probing other names.
func (c *Client) DownloadArtifact(ctx context.Context, streamID, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/recordings/%s/%s", c.baseURL, streamID, name), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.RemoteService("media-server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("recording artifact " + name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.RemoteService("media-server",
			fmt.Errorf("download artifact: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.RemoteService("media-server", err)
	}

	log.Debug().
		Str("streamId", streamID).
		Str("name", name).
		Int("size", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("downloaded recording artifact")

	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request, op string) error {
	start := time.Now()

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("op", op).Dur("elapsed", elapsed).Msg("media server request error")
		return apperrors.RemoteService("media-server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("media server request failed")
		return apperrors.RemoteService("media-server", fmt.Errorf("%s: status %d", op, resp.StatusCode))
	}

	log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("media server request ok")
	return nil
}
