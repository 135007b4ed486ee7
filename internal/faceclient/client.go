// Package faceclient calls the external embedding-extraction service that
// turns a face image into a fixed-length vector. Matching itself happens
// in-process; this client only produces probes and enrollment vectors.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Quality contains face quality metrics reported by the extractor.
type Quality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	FaceSize  int     `json:"face_size"`
	IsFrontal bool    `json:"is_frontal"`
}

// EmbedResult contains the extracted vector and detection confidence.
type EmbedResult struct {
	Embedding     []float64
	Score         float64
	FacesDetected int
	Quality       *Quality
}

// Client calls the embedding-extraction microservice.
type Client struct {
	BaseURL string
	Dim     int
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. When skip is set the client fabricates deterministic
// vectors of the given dimension, for dev setups without the extractor.
func New(baseURL string, dim int, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Dim:     dim,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // extraction can take a while
		},
	}
}

// Embed requests an embedding for an image URL.
func (c *Client) Embed(ctx context.Context, imageURL string) (*EmbedResult, error) {
	if c.Skip {
		vec := make([]float64, c.Dim)
		for i := range vec {
			vec[i] = 0.1
		}
		return &EmbedResult{
			Embedding:     vec,
			Score:         0.95,
			FacesDetected: 1,
			Quality:       &Quality{Score: 0.85, IsFrontal: true},
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Embedding     []float64 `json:"embedding"`
		Score         float64   `json:"score"`
		FacesDetected int       `json:"faces_detected"`
		Quality       *Quality  `json:"quality"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}
	if out.FacesDetected > 1 {
		return nil, fmt.Errorf("multiple faces detected, provide a single-face image")
	}
	if c.Dim > 0 && len(out.Embedding) != c.Dim {
		return nil, fmt.Errorf("extractor returned %d-dim embedding, want %d", len(out.Embedding), c.Dim)
	}

	return &EmbedResult{
		Embedding:     out.Embedding,
		Score:         out.Score,
		FacesDetected: out.FacesDetected,
		Quality:       out.Quality,
	}, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
