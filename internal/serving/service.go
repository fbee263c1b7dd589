package serving

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/protocol"
)

// ErrInvalidDate marks a request date that is not formatted YYYY-MM-DD.
var ErrInvalidDate = errors.New("date must be formatted YYYY-MM-DD")

// Source labels name the tier a unified view was answered from.
const (
	SourceSpeed = "speed"
	SourceBatch = "batch"
	SourceRaw   = "raw"
)

// Store is the read surface of the serving layer.
type Store interface {
	FetchRecentRealtime(ctx context.Context, timestampCutoff, processingCutoff time.Time) ([]*database.RealtimeRow, error)
	FetchLatestHourlyPerLocation(ctx context.Context) ([]*database.HourlyLatest, error)
	FetchLatestRawPerLocation(ctx context.Context) ([]*database.RawRecord, error)
	FetchHourly(ctx context.Context, sinceDate string) ([]*database.HourlyRow, error)
	FetchPeakSummary(ctx context.Context, date string) (*database.PeakSummary, error)
	GetLocations(ctx context.Context) ([]*database.Location, error)
}

// ViewRow is one location's entry in the unified view, whichever tier
// produced it.
type ViewRow struct {
	Timestamp    time.Time `json:"timestamp"`
	Location     string    `json:"location"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	AQIValue     *int      `json:"aqi_value"`
	AQICategory  *string   `json:"aqi_category"`
	TrafficLevel *int      `json:"traffic_level"`
	IsPeakHour   bool      `json:"is_peak_hour"`
}

// Service is the read-only facade over the store. It never writes and
// never swallows store errors.
type Service struct {
	store     Store
	localizer *localtime.Localizer
	retention time.Duration
	now       func() time.Time
}

// NewService creates a new serving service. retention is the real-time
// set's retention window; rows processed before it are never served.
func NewService(store Store, localizer *localtime.Localizer, retention time.Duration) *Service {
	return &Service{
		store:     store,
		localizer: localizer,
		retention: retention,
		now:       time.Now,
	}
}

// GetUnifiedView returns the freshest available row per location and
// the tier label that produced them. Tiers are tried in fixed order:
// speed, then batch, then raw.
func (s *Service) GetUnifiedView(ctx context.Context, maxRealtimeAge time.Duration) ([]ViewRow, string, error) {
	now := s.now().UTC()

	realtime, err := s.store.FetchRecentRealtime(ctx, now.Add(-maxRealtimeAge), now.Add(-s.retention))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read realtime tier: %w", err)
	}
	if len(realtime) > 0 {
		rows := make([]ViewRow, 0, len(realtime))
		for _, r := range realtime {
			lat, lon := r.Latitude, r.Longitude
			rows = append(rows, ViewRow{
				Timestamp:    r.Timestamp,
				Location:     r.Location,
				Latitude:     &lat,
				Longitude:    &lon,
				AQIValue:     r.AQIValue,
				AQICategory:  r.AQICategory,
				TrafficLevel: r.TrafficLevel,
				IsPeakHour:   r.IsPeakHour,
			})
		}
		return rows, SourceSpeed, nil
	}

	hourly, err := s.store.FetchLatestHourlyPerLocation(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read batch tier: %w", err)
	}
	if len(hourly) > 0 {
		rows := make([]ViewRow, 0, len(hourly))
		for _, h := range hourly {
			row, err := s.hourlyViewRow(h)
			if err != nil {
				return nil, "", err
			}
			rows = append(rows, row)
		}
		return rows, SourceBatch, nil
	}

	raw, err := s.store.FetchLatestRawPerLocation(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read raw tier: %w", err)
	}
	if len(raw) == 0 {
		// Nothing ingested yet: an empty view carries no tier label.
		return []ViewRow{}, "", nil
	}
	rows := make([]ViewRow, 0, len(raw))
	for _, r := range raw {
		lat, lon := r.Latitude, r.Longitude
		rows = append(rows, ViewRow{
			Timestamp:    r.Timestamp,
			Location:     r.Location,
			Latitude:     &lat,
			Longitude:    &lon,
			AQIValue:     r.AQIValue,
			AQICategory:  r.AQICategory,
			TrafficLevel: r.TrafficLevel,
			IsPeakHour:   r.IsPeakHour,
		})
	}
	return rows, SourceRaw, nil
}

// hourlyViewRow renders one latest-hourly aggregation as a view row:
// averages rounded to integer readings, timestamped at the local hour
// start.
func (s *Service) hourlyViewRow(h *database.HourlyLatest) (ViewRow, error) {
	timestamp, err := s.localizer.HourStart(h.Date, h.Hour)
	if err != nil {
		return ViewRow{}, fmt.Errorf("failed to place hourly row %s/%d: %w", h.Date, h.Hour, err)
	}

	row := ViewRow{
		Timestamp:  timestamp,
		Location:   h.Location,
		Latitude:   h.Latitude,
		Longitude:  h.Longitude,
		IsPeakHour: h.IsPeakHour,
	}
	if h.AvgAQIValue != nil {
		aqi := int(math.Round(*h.AvgAQIValue))
		category := string(protocol.CategorizeAQI(aqi))
		row.AQIValue = &aqi
		row.AQICategory = &category
	}
	if h.AvgTrafficLevel != nil {
		traffic := int(math.Round(*h.AvgTrafficLevel))
		row.TrafficLevel = &traffic
	}
	return row, nil
}

// GetHourlySeries returns the hourly aggregations of the last N local
// days, today included, sorted by (location, date, hour).
func (s *Service) GetHourlySeries(ctx context.Context, days int) ([]*database.HourlyRow, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", days)
	}

	today, _ := s.localizer.DateHour(s.now())
	start, err := time.Parse(localtime.DateLayout, today)
	if err != nil {
		return nil, fmt.Errorf("failed to compute series window: %w", err)
	}
	sinceDate := start.AddDate(0, 0, -(days - 1)).Format(localtime.DateLayout)

	return s.store.FetchHourly(ctx, sinceDate)
}

// GetPeakSummary returns the peak summary of one local date, or nil
// when that date has not been analyzed.
func (s *Service) GetPeakSummary(ctx context.Context, date string) (*database.PeakSummary, error) {
	if _, err := time.Parse(localtime.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return s.store.FetchPeakSummary(ctx, date)
}

// GetLocations returns the monitored locations.
func (s *Service) GetLocations(ctx context.Context) ([]*database.Location, error) {
	return s.store.GetLocations(ctx)
}
