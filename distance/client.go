package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNoRoute   = errors.New("distance: no route")
	ErrAmbiguous = errors.New("distance: ambiguous route")
)

// Client talks to a Google Directions compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	region     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, region string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		region:  region,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance struct {
				Value float64 `json:"value"`
				Text  string  `json:"text"`
			} `json:"distance"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route returns the driving distance in meters between two free-text locations.
func (c *Client) Route(ctx context.Context, origin, destination string) (float64, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("mode", "driving")
	q.Set("avoid", "ferries")
	if c.region != "" {
		q.Set("region", c.region)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	var resp directionsResponse
	if err := c.get(ctx, "/maps/api/directions/json?"+q.Encode(), &resp); err != nil {
		return 0, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return 0, ErrNoRoute
	default:
		return 0, fmt.Errorf("directions status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Routes) == 0 {
		return 0, ErrNoRoute
	}
	if len(resp.Routes) > 1 || len(resp.Routes[0].Legs) != 1 {
		return 0, ErrAmbiguous
	}
	return resp.Routes[0].Legs[0].Distance.Value, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("directions request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directions GET: %w", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, result)
}

func (c *Client) decode(resp *http.Response, result any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("directions read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("directions HTTP %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("directions decode: %w", err)
	}
	return nil
}
