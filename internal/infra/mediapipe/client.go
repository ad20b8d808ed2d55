package mediapipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 16
	jpegQuality      = 90
)

// Client talks to the holistic landmark sidecar, a small HTTP service wrapping
// MediaPipe Holistic.
type Client struct {
	baseURL    string
	batchSize  int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, batchSize int, timeout time.Duration, logger *zap.Logger) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		baseURL:    baseURL,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) WaitForReady(ctx context.Context, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := c.HealthCheck(ctx); err == nil {
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("landmark sidecar not ready after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

type holisticRequest struct {
	Images []string `json:"images"`
}

type holisticResponse struct {
	Results []entity.Holistic `json:"results"`
}

// EstimateHolistic returns one result per frame, in frame order. Frames are sent
// as base64 JPEGs in batches of batchSize.
func (c *Client) EstimateHolistic(ctx context.Context, frames []image.Image) ([]entity.Holistic, error) {
	out := make([]entity.Holistic, 0, len(frames))
	for start := 0; start < len(frames); start += c.batchSize {
		end := min(start+c.batchSize, len(frames))
		batch, err := c.estimateBatch(ctx, frames[start:end])
		if err != nil {
			return nil, fmt.Errorf("frames %d..%d: %w", start, end-1, err)
		}
		out = append(out, batch...)
	}
	c.logger.Debug("holistic landmarks estimated", zap.Int("frames", len(frames)))
	return out, nil
}

func (c *Client) estimateBatch(ctx context.Context, frames []image.Image) ([]entity.Holistic, error) {
	payload := holisticRequest{Images: make([]string, len(frames))}
	var buf bytes.Buffer
	for i, f := range frames {
		buf.Reset()
		if err := jpeg.Encode(&buf, f, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", i, err)
		}
		payload.Images[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/holistic", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holistic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("holistic returned %d: %s", resp.StatusCode, respBody)
	}

	var result holisticResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding holistic response: %w", err)
	}
	if len(result.Results) != len(frames) {
		return nil, fmt.Errorf("holistic returned %d results for %d frames", len(result.Results), len(frames))
	}
	return result.Results, nil
}
