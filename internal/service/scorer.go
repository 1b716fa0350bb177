package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ScorerResult is the AI service's response contract. MultipleFaces is only
// present when the scorer explicitly detects it; the pipeline never infers
// it.
type ScorerResult struct {
	EngagementScore float64 `json:"engagement_score"`
	State           string  `json:"state"`
	Confidence      float64 `json:"confidence"`
	MultipleFaces   bool    `json:"multiple_faces,omitempty"`
}

// Scorer converts a webcam frame into an engagement observation.
type Scorer interface {
	Score(ctx context.Context, frame []byte, studentID string) (*ScorerResult, error)
}

// HTTPScorer calls the external AI microservice. Failures are returned as
// errors wrapping ErrUpstreamUnavailable; the ingestion pipeline degrades
// them to a fallback result instead of surfacing them.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, frame []byte, studentID string) (*ScorerResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fmt.Sprintf("frame_%s_%d.jpg", studentID, time.Now().UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, errBody)
	}

	var result ScorerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
	}
	if result.State == "" {
		return nil, fmt.Errorf("%w: unexpected response shape", ErrUpstreamUnavailable)
	}

	return &result, nil
}
