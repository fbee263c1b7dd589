package serving

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

type fakeServingStore struct {
	realtime    []*database.RealtimeRow
	realtimeErr error
	hourlyMax   []*database.HourlyLatest
	hourlyErr   error
	raw         []*database.RawRecord
	rawErr      error
	series      []*database.HourlyRow
	seriesErr   error
	peaks       map[string]*database.PeakSummary
	locations   []*database.Location

	timestampCutoff  time.Time
	processingCutoff time.Time
	sinceDate        string
	batchCalls       int
	rawCalls         int
}

func (s *fakeServingStore) FetchRecentRealtime(ctx context.Context, timestampCutoff, processingCutoff time.Time) ([]*database.RealtimeRow, error) {
	s.timestampCutoff = timestampCutoff
	s.processingCutoff = processingCutoff
	return s.realtime, s.realtimeErr
}

func (s *fakeServingStore) FetchLatestHourlyPerLocation(ctx context.Context) ([]*database.HourlyLatest, error) {
	s.batchCalls++
	return s.hourlyMax, s.hourlyErr
}

func (s *fakeServingStore) FetchLatestRawPerLocation(ctx context.Context) ([]*database.RawRecord, error) {
	s.rawCalls++
	return s.raw, s.rawErr
}

func (s *fakeServingStore) FetchHourly(ctx context.Context, sinceDate string) ([]*database.HourlyRow, error) {
	s.sinceDate = sinceDate
	return s.series, s.seriesErr
}

func (s *fakeServingStore) FetchPeakSummary(ctx context.Context, date string) (*database.PeakSummary, error) {
	return s.peaks[date], nil
}

func (s *fakeServingStore) GetLocations(ctx context.Context) ([]*database.Location, error) {
	return s.locations, nil
}

func newTestService(store Store) *Service {
	service := NewService(store, mustLocalizer(), time.Hour)
	service.now = func() time.Time {
		return time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC)
	}
	return service
}

func mustLocalizer() *localtime.Localizer {
	localizer, err := localtime.New(7, []int{6, 7, 8, 9, 16, 17, 18, 19})
	if err != nil {
		panic(err)
	}
	return localizer
}

func TestGetUnifiedView_SpeedTierWhenRealtimeIsFresh(t *testing.T) {
	store := &fakeServingStore{
		realtime: []*database.RealtimeRow{
			{
				Timestamp:    time.Date(2025, 1, 10, 5, 59, 0, 0, time.UTC),
				Location:     "Bundaran HI",
				Latitude:     -6.195,
				Longitude:    106.823,
				AQIValue:     intPtr(82),
				AQICategory:  strPtr("Moderate"),
				TrafficLevel: intPtr(4),
				IsPeakHour:   false,
			},
		},
	}
	service := newTestService(store)

	rows, source, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, SourceSpeed, source)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bundaran HI", rows[0].Location)
	assert.Equal(t, 82, *rows[0].AQIValue)
	assert.Equal(t, "Moderate", *rows[0].AQICategory)
	assert.Equal(t, 4, *rows[0].TrafficLevel)
	assert.Equal(t, -6.195, *rows[0].Latitude)

	// Freshness window is [now-maxAge, ...], processing cutoff trails by
	// the retention period.
	assert.Equal(t, time.Date(2025, 1, 10, 5, 55, 0, 0, time.UTC), store.timestampCutoff)
	assert.Equal(t, time.Date(2025, 1, 10, 5, 0, 0, 0, time.UTC), store.processingCutoff)
	assert.Equal(t, 0, store.batchCalls)
	assert.Equal(t, 0, store.rawCalls)
}

func TestGetUnifiedView_FallsBackToBatchTier(t *testing.T) {
	store := &fakeServingStore{
		hourlyMax: []*database.HourlyLatest{
			{
				HourlyRow: database.HourlyRow{
					Date:            "2025-01-10",
					Hour:            12,
					Location:        "Kemayoran",
					AvgTrafficLevel: floatPtr(2.4),
					TrafficCount:    12,
					AvgAQIValue:     floatPtr(123.5),
					AQICount:        11,
					TotalRecords:    12,
					IsPeakHour:      false,
				},
				Latitude:  floatPtr(-6.1911),
				Longitude: floatPtr(106.8491),
			},
		},
	}
	service := newTestService(store)

	rows, source, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, SourceBatch, source)
	require.Len(t, rows, 1)

	// Local hour 12 on 2025-01-10 is 05:00 UTC.
	assert.Equal(t, time.Date(2025, 1, 10, 5, 0, 0, 0, time.UTC), rows[0].Timestamp.UTC())
	assert.Equal(t, 124, *rows[0].AQIValue)
	assert.Equal(t, "Unhealthy for Sensitive Groups", *rows[0].AQICategory)
	assert.Equal(t, 2, *rows[0].TrafficLevel)
	assert.Equal(t, -6.1911, *rows[0].Latitude)
	assert.Equal(t, 0, store.rawCalls)
}

func TestGetUnifiedView_BatchRowWithoutAQIKeepsNilMetric(t *testing.T) {
	store := &fakeServingStore{
		hourlyMax: []*database.HourlyLatest{
			{
				HourlyRow: database.HourlyRow{
					Date:            "2025-01-10",
					Hour:            7,
					Location:        "Krukut",
					AvgTrafficLevel: floatPtr(4.6),
					TrafficCount:    8,
					TotalRecords:    8,
					IsPeakHour:      true,
				},
			},
		},
	}
	service := newTestService(store)

	rows, _, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Nil(t, rows[0].AQIValue)
	assert.Nil(t, rows[0].AQICategory)
	assert.Equal(t, 5, *rows[0].TrafficLevel)
	assert.True(t, rows[0].IsPeakHour)
	assert.Nil(t, rows[0].Latitude)
}

func TestGetUnifiedView_FallsBackToRawTier(t *testing.T) {
	store := &fakeServingStore{
		raw: []*database.RawRecord{
			{
				Timestamp:    time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC),
				Location:     "Cinere",
				Latitude:     -6.3415,
				Longitude:    106.7845,
				TrafficLevel: intPtr(1),
			},
		},
	}
	service := newTestService(store)

	rows, source, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, SourceRaw, source)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cinere", rows[0].Location)
	assert.Equal(t, 1, *rows[0].TrafficLevel)
	assert.Nil(t, rows[0].AQIValue)
}

func TestGetUnifiedView_EmptyStoreHasNoSource(t *testing.T) {
	store := &fakeServingStore{}
	service := newTestService(store)

	rows, source, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.NoError(t, err)

	assert.Empty(t, rows)
	assert.NotNil(t, rows)
	assert.Equal(t, "", source)
}

func TestGetUnifiedView_RealtimeErrorStopsFallback(t *testing.T) {
	store := &fakeServingStore{realtimeErr: database.ErrUnavailable}
	service := newTestService(store)

	_, _, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.Error(t, err)

	assert.True(t, errors.Is(err, database.ErrUnavailable))
	assert.Equal(t, 0, store.batchCalls)
	assert.Equal(t, 0, store.rawCalls)
}

func TestGetUnifiedView_RawErrorPropagates(t *testing.T) {
	store := &fakeServingStore{rawErr: errors.New("relation does not exist")}
	service := newTestService(store)

	_, _, err := service.GetUnifiedView(context.Background(), 5*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw tier")
}

func TestGetHourlySeries_WindowStartsDaysBackInLocalTime(t *testing.T) {
	store := &fakeServingStore{
		series: []*database.HourlyRow{{Date: "2025-01-10", Hour: 3, Location: "Gunung"}},
	}
	service := NewService(store, mustLocalizer(), time.Hour)
	// 18:30 UTC is already 01:30 the next local day.
	service.now = func() time.Time {
		return time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC)
	}

	rows, err := service.GetHourlySeries(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "2025-01-10", store.sinceDate)
	assert.Len(t, rows, 1)
}

func TestGetHourlySeries_RejectsNonPositiveDays(t *testing.T) {
	service := newTestService(&fakeServingStore{})

	_, err := service.GetHourlySeries(context.Background(), 0)
	assert.Error(t, err)
}

func TestGetPeakSummary_ValidatesDate(t *testing.T) {
	service := newTestService(&fakeServingStore{})

	_, err := service.GetPeakSummary(context.Background(), "10-01-2025")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestGetPeakSummary_ReturnsNilWhenAbsent(t *testing.T) {
	service := newTestService(&fakeServingStore{peaks: map[string]*database.PeakSummary{}})

	summary, err := service.GetPeakSummary(context.Background(), "2025-01-09")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestGetPeakSummary_ReturnsStoredSummary(t *testing.T) {
	store := &fakeServingStore{
		peaks: map[string]*database.PeakSummary{
			"2025-01-09": {
				AnalysisDate:    "2025-01-09",
				PeakAQIHour:     intPtr(17),
				PeakAQIValue:    floatPtr(180.3),
				PeakAQILocation: strPtr("Kebon Sirih"),
			},
		},
	}
	service := newTestService(store)

	summary, err := service.GetPeakSummary(context.Background(), "2025-01-09")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 17, *summary.PeakAQIHour)
	assert.Equal(t, 180.3, *summary.PeakAQIValue)
}
