package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TrafficClient queries a TomTom-style flow segment endpoint by
// coordinates and derives a 1-5 congestion level from the speed ratio.
type TrafficClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTrafficClient creates a traffic feed client. The timeout is a
// backstop; per-call deadlines come from the caller's context.
func NewTrafficClient(baseURL, apiKey string, timeout time.Duration) *TrafficClient {
	return &TrafficClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type flowSegmentResponse struct {
	FlowSegmentData struct {
		CurrentSpeed  float64 `json:"currentSpeed"`
		FreeFlowSpeed float64 `json:"freeFlowSpeed"`
	} `json:"flowSegmentData"`
}

// Fetch returns the congestion level for the site's coordinates.
func (c *TrafficClient) Fetch(ctx context.Context, site Site) Result {
	url := fmt.Sprintf("%s?point=%f,%f&key=%s", c.baseURL, site.Latitude, site.Longitude, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(fmt.Sprintf("build request: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Transient(fmt.Sprintf("traffic request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Transient(fmt.Sprintf("traffic feed returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return Permanent(fmt.Sprintf("traffic feed returned %d", resp.StatusCode))
	}

	var body flowSegmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Transient(fmt.Sprintf("decode traffic response: %v", err))
	}

	level := TrafficLevelFromSpeeds(body.FlowSegmentData.FreeFlowSpeed, body.FlowSegmentData.CurrentSpeed)
	return OK(level)
}

// TrafficLevelFromSpeeds converts a free-flow vs current speed pair to
// a congestion level 1-5, 5 being the most congested. The bands cut on
// the fraction of speed lost relative to free flow.
func TrafficLevelFromSpeeds(freeFlowSpeed, currentSpeed float64) int {
	if freeFlowSpeed <= 0 {
		return 1
	}

	ratio := (freeFlowSpeed - currentSpeed) / freeFlowSpeed
	switch {
	case ratio < 0.1:
		return 1 // Light traffic
	case ratio < 0.3:
		return 2
	case ratio < 0.5:
		return 3
	case ratio < 0.7:
		return 4
	default:
		return 5 // Heavy traffic
	}
}
