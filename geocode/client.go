// Package geocode talks to a Nominatim-compatible reverse geocoding service.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const defaultTimeout = 5 * time.Second

// responses are tiny; the cap guards against a misbehaving endpoint.
const maxResponseSize = 256 * 1024

// Client performs single-attempt, timeout-bounded reverse geocoding lookups.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New creates a Client against baseURL (e.g. https://nominatim.openstreetmap.org).
func New(baseURL, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ReverseGeocode resolves coordinates to the service's free-text address.
// Cancellable via ctx; no retries.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", err
	}
	var out reverseResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("reverse geocode: %s", out.Error)
	}
	if out.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode: empty result")
	}
	return out.DisplayName, nil
}
