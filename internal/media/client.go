// Package media is a client for the external media-transform service that
// crops images and extracts video frames.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
)

// DefaultTimeout bounds a single request to the media service.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// Client implements nodes.MediaTransformer over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL. timeout <= 0 uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type urlResponse struct {
	URL string `json:"url"`
}

type probeRequest struct {
	VideoURL string `json:"videoUrl"`
}

type probeResponse struct {
	Duration float64 `json:"duration"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Crop returns a reference to the cropped image.
func (c *Client) Crop(ctx context.Context, req nodes.CropRequest) (string, error) {
	var resp urlResponse
	if err := c.post(ctx, "/crop", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ExtractFrame returns a reference to the frame at req.Timestamp.
func (c *Client) ExtractFrame(ctx context.Context, req nodes.ExtractRequest) (string, error) {
	var resp urlResponse
	if err := c.post(ctx, "/extract-frame", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Duration returns the length of the video in seconds.
func (c *Client) Duration(ctx context.Context, videoURL string) (float64, error) {
	var resp probeResponse
	if err := c.post(ctx, "/probe", probeRequest{VideoURL: videoURL}, &resp); err != nil {
		return 0, err
	}
	return resp.Duration, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	pe := &nodes.ProviderError{StatusCode: resp.StatusCode}

	var body errorResponse
	if json.Unmarshal(raw, &body) == nil {
		pe.Code = body.Code
		pe.Message = body.Error
		if pe.Message == "" {
			pe.Message = body.Message
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(raw))
	}
	if pe.Message == "" {
		pe.Message = resp.Status
	}
	return pe
}
