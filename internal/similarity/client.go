// Package similarity talks to the external text and image scorer services
// and applies the two-stage threshold gate that confirms a candidate pair
// as a match.
//
// Both scorers are plain JSON-over-HTTP endpoints. Calls share a token
// bucket so a large backlog of candidate pairs cannot stampede the scorer
// processes.
package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TextScorer computes a similarity score in [0,1] for two free-text
// descriptions.
type TextScorer interface {
	TextSimilarity(ctx context.Context, a, b string) (float64, error)
}

// ImageScorer computes a similarity score in [0,1] for two image references.
type ImageScorer interface {
	ImageSimilarity(ctx context.Context, refA, refB string) (float64, error)
}

// ErrBadResponse indicates the scorer answered but the body was not usable.
var ErrBadResponse = errors.New("scorer: bad response")

// Client calls the scorer HTTP endpoints. The zero value is not usable;
// construct with NewClient.
type Client struct {
	textURL    string
	imageURL   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a scorer client for the given endpoint URLs. timeout
// bounds each call; rps/burst feed the shared token bucket (rps <= 0
// disables limiting). A burst below 1 is raised to 1: a zero-burst limiter
// rejects every Wait, which would silently score all pairs as no-match.
func NewClient(textURL, imageURL string, timeout time.Duration, rps float64, burst int) *Client {
	var lim *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		textURL:  textURL,
		imageURL: imageURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: lim,
	}
}

type textRequest struct {
	TextA string `json:"text_a"`
	TextB string `json:"text_b"`
}

type imageRequest struct {
	ImageRefA string `json:"image_ref_a"`
	ImageRefB string `json:"image_ref_b"`
}

type scoreResponse struct {
	Similarity *float64 `json:"similarity"`
}

// TextSimilarity scores two descriptions. An absent or non-numeric
// similarity field is an error: the caller treats it as no-match for the
// pair.
func (c *Client) TextSimilarity(ctx context.Context, a, b string) (float64, error) {
	var resp scoreResponse
	if err := c.post(ctx, c.textURL, textRequest{TextA: a, TextB: b}, &resp); err != nil {
		return 0, err
	}
	if resp.Similarity == nil {
		return 0, fmt.Errorf("%w: missing similarity field", ErrBadResponse)
	}
	return *resp.Similarity, nil
}

// ImageSimilarity scores two image references. Unlike the text scorer, an
// absent similarity field defaults to 0.0 (treated as no-match, not an
// error), matching the image service's fallback behavior.
func (c *Client) ImageSimilarity(ctx context.Context, refA, refB string) (float64, error) {
	var resp scoreResponse
	if err := c.post(ctx, c.imageURL, imageRequest{ImageRefA: refA, ImageRefB: refB}, &resp); err != nil {
		return 0, err
	}
	if resp.Similarity == nil {
		return 0, nil
	}
	return *resp.Similarity, nil
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
