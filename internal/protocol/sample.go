package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSample is wrapped by every decode or validation failure.
var ErrInvalidSample = errors.New("invalid location sample")

// LocationSample is the record format published on the bus and appended
// to the raw log. Absent metrics are encoded as null; at least one of
// AQIValue or TrafficLevel must be present.
type LocationSample struct {
	Timestamp    time.Time    `json:"timestamp"`
	Location     string       `json:"location"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	AQIValue     *int         `json:"aqi_value"`
	TrafficLevel *int         `json:"traffic_level"`
	AQICategory  *AQICategory `json:"aqi_category"`
	IsPeakHour   bool         `json:"is_peak_hour"`
}

// HasAQI reports whether the AQI leg of the sample is present.
func (s *LocationSample) HasAQI() bool {
	return s.AQIValue != nil
}

// HasTraffic reports whether the traffic leg of the sample is present.
func (s *LocationSample) HasTraffic() bool {
	return s.TrafficLevel != nil
}

// Validate checks the sample against the wire contract.
func (s *LocationSample) Validate() error {
	if s.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidSample)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidSample, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidSample, s.Longitude)
	}
	if s.AQIValue == nil && s.TrafficLevel == nil {
		return fmt.Errorf("%w: at least one metric is required", ErrInvalidSample)
	}
	if s.AQIValue != nil && *s.AQIValue < 0 {
		return fmt.Errorf("%w: negative aqi_value %d", ErrInvalidSample, *s.AQIValue)
	}
	if s.TrafficLevel != nil && (*s.TrafficLevel < 1 || *s.TrafficLevel > 5) {
		return fmt.Errorf("%w: traffic_level %d out of range", ErrInvalidSample, *s.TrafficLevel)
	}
	if (s.AQICategory != nil) != (s.AQIValue != nil) {
		return fmt.Errorf("%w: aqi_category must be present exactly when aqi_value is", ErrInvalidSample)
	}
	return nil
}

// EncodeLocationSample encodes a LocationSample to JSON.
func EncodeLocationSample(s *LocationSample) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeLocationSample decodes and validates a JSON LocationSample.
func DecodeLocationSample(data []byte) (*LocationSample, error) {
	var s LocationSample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
