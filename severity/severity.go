// CLAUDE:SUMMARY Client for the external text-severity prediction service and normalisation of its labels to low/mid/high.
// Package severity talks to the text-classification service that weighs an
// incident description. The relay only annotates alerts with the result;
// delivery never depends on it.
package severity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Level is a normalised severity.
type Level string

const (
	Low  Level = "low"
	Mid  Level = "mid"
	High Level = "high"
)

// ErrUnknownLabel is returned for a label outside the known scale. Callers
// decide what an unknown severity means; it is never mapped to Low.
var ErrUnknownLabel = errors.New("severity: unknown label")

// Normalize maps a raw label to a Level, case-insensitively.
func Normalize(label string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "very high", "high":
		return High, nil
	case "medium", "mid":
		return Mid, nil
	case "low":
		return Low, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, label)
}

// Prediction is the service's answer for one text.
type Prediction struct {
	Label      string   `json:"weight"`
	Level      Level    `json:"level,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	// Unknown is set when Label did not normalise; Level is then empty.
	Unknown bool `json:"unknown,omitempty"`
}

// Client calls POST <base>/predict.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client for the service at base.
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Predict classifies text. An unknown label is not an error: the
// Prediction comes back with Unknown set.
func (c *Client) Predict(ctx context.Context, text string) (*Prediction, error) {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{text})
	if err != nil {
		return nil, fmt.Errorf("severity: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("severity: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("severity: predict: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("severity: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var p Prediction
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&p); err != nil {
		return nil, fmt.Errorf("severity: decode: %w", err)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return nil, fmt.Errorf("severity: confidence %v out of [0,1]", *p.Confidence)
	}

	lvl, err := Normalize(p.Label)
	if err != nil {
		c.logger.Warn("severity: unknown label", "label", p.Label)
		p.Unknown = true
		p.Level = ""
		return &p, nil
	}
	p.Level = lvl
	return &p, nil
}
