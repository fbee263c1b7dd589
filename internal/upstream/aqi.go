package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// AQIClient queries an AQICN-style station feed endpoint.
type AQIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAQIClient creates an air-quality feed client.
func NewAQIClient(baseURL, token string, timeout time.Duration) *AQIClient {
	return &AQIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type aqiFeedResponse struct {
	Status string `json:"status"`
	Data   struct {
		AQI interface{} `json:"aqi"`
	} `json:"data"`
}

// Fetch returns the AQI reading for the site's station.
func (c *AQIClient) Fetch(ctx context.Context, site Site) Result {
	url := fmt.Sprintf("%s/%s/?token=%s", c.baseURL, site.StationID, c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(fmt.Sprintf("build request: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Transient(fmt.Sprintf("aqi request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Transient(fmt.Sprintf("aqi feed returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return Permanent(fmt.Sprintf("aqi feed returned %d", resp.StatusCode))
	}

	var body aqiFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Transient(fmt.Sprintf("decode aqi response: %v", err))
	}

	if body.Status != "ok" {
		return Permanent(fmt.Sprintf("aqi feed status %q", body.Status))
	}

	value, ok := coerceAQI(body.Data.AQI)
	if !ok {
		// The station reports "-" while it has no current reading.
		return Permanent("aqi reading not numeric")
	}
	if value < 0 {
		return Permanent(fmt.Sprintf("negative aqi reading %d", value))
	}

	return OK(value)
}

// coerceAQI accepts the number-or-string aqi field of the feed.
func coerceAQI(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
