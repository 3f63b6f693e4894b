package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/parking-alpr/internal/plate"
)

// DefaultEngineTimeout bounds one sidecar call.
const DefaultEngineTimeout = 10 * time.Second

// maxEngineResponse caps sidecar response bodies.
const maxEngineResponse = 1 << 20

// HTTPDetector calls a detection sidecar. It POSTs the frame as image/png to
// URL and expects {"box": {"x1":..,"y1":..,"x2":..,"y2":..,"confidence":..}}
// with a null box when nothing was found.
type HTTPDetector struct {
	URL    string
	Client *http.Client
}

// NewHTTPDetector returns a detector for url with DefaultEngineTimeout.
func NewHTTPDetector(url string) *HTTPDetector {
	return &HTTPDetector{URL: url, Client: &http.Client{Timeout: DefaultEngineTimeout}}
}

type detectResponse struct {
	Box *Box `json:"box"`
}

// DetectBest implements Detector.
func (d *HTTPDetector) DetectBest(ctx context.Context, img image.Image) (*Box, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, ErrEngineUnavailable
	}
	var out detectResponse
	if err := postImage(ctx, d.Client, d.URL, img, &out); err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	return out.Box, nil
}

// HTTPRecognizer calls a text recognition sidecar. It POSTs the crop as
// image/png to URL and expects {"candidates": [{"text":..,"confidence":..}]}.
type HTTPRecognizer struct {
	URL    string
	Client *http.Client
}

// NewHTTPRecognizer returns a recognizer for url with DefaultEngineTimeout.
func NewHTTPRecognizer(url string) *HTTPRecognizer {
	return &HTTPRecognizer{URL: url, Client: &http.Client{Timeout: DefaultEngineTimeout}}
}

type recognizeResponse struct {
	Candidates []plate.Candidate `json:"candidates"`
}

// ReadCandidates implements Recognizer.
func (r *HTTPRecognizer) ReadCandidates(ctx context.Context, img image.Image) ([]plate.Candidate, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, ErrEngineUnavailable
	}
	var out recognizeResponse
	if err := postImage(ctx, r.Client, r.URL, img, &out); err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	for i := range out.Candidates {
		out.Candidates[i].Confidence = clampUnit(out.Candidates[i].Confidence)
	}
	return out.Candidates, nil
}

func postImage(ctx context.Context, client *http.Client, url string, img image.Image, out any) error {
	body, err := EncodePNG(img)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = &http.Client{Timeout: DefaultEngineTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEngineResponse)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
