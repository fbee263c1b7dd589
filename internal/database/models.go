package database

import (
	"time"
)

// Location represents a monitored geographic point.
type Location struct {
	Name      string
	StationID string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RawRecord represents one appended sample in the raw log.
type RawRecord struct {
	ID           int64
	Timestamp    time.Time
	Location     string
	Latitude     float64
	Longitude    float64
	AQIValue     *int
	AQICategory  *string
	TrafficLevel *int
	IsPeakHour   bool
	IngestedAt   time.Time
}

// RealtimeRow represents a sample in the real-time active set.
type RealtimeRow struct {
	ID                  int64
	Timestamp           time.Time
	Location            string
	Latitude            float64
	Longitude           float64
	AQIValue            *int
	AQICategory         *string
	TrafficLevel        *int
	IsPeakHour          bool
	ProcessingTimestamp time.Time
	IsActive            bool
}

// HourlyRow represents one hourly aggregation keyed by (date, hour, location).
// Averages carry their own sample counts so a record missing one metric
// does not dilute the other.
type HourlyRow struct {
	ID              int64
	Date            string
	Hour            int
	Location        string
	AvgTrafficLevel *float64
	TrafficCount    int
	AvgAQIValue     *float64
	AQICount        int
	TotalRecords    int
	IsPeakHour      bool
	UpdatedAt       time.Time
}

// HourlyLatest is the newest hourly row per location with the location's
// coordinates joined in, for serving reads.
type HourlyLatest struct {
	HourlyRow
	Latitude  *float64
	Longitude *float64
}

// DailyRow represents one daily aggregation per location. Hour is nil
// for whole-day rows.
type DailyRow struct {
	ID              int64
	Date            string
	Hour            *int
	Location        string
	AvgAQI          *float64
	MinAQI          *int
	MaxAQI          *int
	AvgTraffic      *float64
	MinTraffic      *int
	MaxTraffic      *int
	DataPointsCount int
	IsPeakHour      bool
	CreatedAt       time.Time
}

// PeakSummary names the worst (hour, location) pairs of one analysis date.
type PeakSummary struct {
	ID                  int64
	AnalysisDate        string
	PeakAQIHour         *int
	PeakAQIValue        *float64
	PeakAQILocation     *string
	PeakTrafficHour     *int
	PeakTrafficValue    *float64
	PeakTrafficLocation *string
	CreatedAt           time.Time
}
