package speed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/protocol"
)

type incrementCall struct {
	date     string
	hour     int
	location string
	traffic  *int
	aqi      *int
	delta    int
	isPeak   bool
}

type fakeStore struct {
	mu           sync.Mutex
	realtime     []*database.RealtimeRow
	realtimeErr  error
	increments   []incrementCall
	incrementErr error
}

func (s *fakeStore) UpsertRealtime(ctx context.Context, row *database.RealtimeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.realtimeErr != nil {
		return s.realtimeErr
	}
	s.realtime = append(s.realtime, row)
	return nil
}

func (s *fakeStore) UpsertHourlyIncrement(ctx context.Context, date string, hour int, location string, traffic, aqi *int, deltaCount int, isPeak bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrementErr != nil {
		return s.incrementErr
	}
	s.increments = append(s.increments, incrementCall{
		date:     date,
		hour:     hour,
		location: location,
		traffic:  traffic,
		aqi:      aqi,
		delta:    deltaCount,
		isPeak:   isPeak,
	})
	return nil
}

type fakeGuard struct {
	mu       sync.Mutex
	seen     map[string]bool
	firstErr error
	released int
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: make(map[string]bool)}
}

func guardKey(location string, timestamp time.Time) string {
	return fmt.Sprintf("%s:%d", location, timestamp.UnixMilli())
}

func (g *fakeGuard) FirstDelivery(ctx context.Context, location string, timestamp time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.firstErr != nil {
		return false, g.firstErr
	}
	key := guardKey(location, timestamp)
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Release(ctx context.Context, location string, timestamp time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, guardKey(location, timestamp))
	g.released++
	return nil
}

func newTestProcessor(t *testing.T, store Store, guard DeliveryGuard) *Processor {
	t.Helper()
	localizer, err := localtime.New(7, []int{6, 7, 8, 9, 16, 17, 18, 19})
	require.NoError(t, err)
	return NewProcessor(store, guard, localizer)
}

func sampleMessage(t *testing.T, location string, timestamp time.Time, traffic, aqi *int) kafka.Message {
	t.Helper()
	sample := &protocol.LocationSample{
		Timestamp:    timestamp,
		Location:     location,
		Latitude:     -6.1861,
		Longitude:    106.8236,
		TrafficLevel: traffic,
		AQIValue:     aqi,
		AQICategory:  protocol.CategoryFor(aqi),
	}
	payload, err := protocol.EncodeLocationSample(sample)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func intPtr(v int) *int { return &v }

func TestProcessor_HandleFoldsSampleIntoHourlyRow(t *testing.T) {
	store := &fakeStore{}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	timestamp := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	msg := sampleMessage(t, "Kebon Sirih", timestamp, intPtr(2), intPtr(45))

	err := p.Handle(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, store.realtime, 1)
	assert.Equal(t, "Kebon Sirih", store.realtime[0].Location)
	require.NotNil(t, store.realtime[0].AQICategory)
	assert.Equal(t, "Good", *store.realtime[0].AQICategory)

	require.Len(t, store.increments, 1)
	inc := store.increments[0]
	// 06:00Z is 13:00 local on the same date
	assert.Equal(t, "2025-01-01", inc.date)
	assert.Equal(t, 13, inc.hour)
	assert.Equal(t, "Kebon Sirih", inc.location)
	assert.Equal(t, 2, *inc.traffic)
	assert.Equal(t, 45, *inc.aqi)
	assert.Equal(t, 1, inc.delta)
	assert.False(t, inc.isPeak)

	assert.Equal(t, int64(1), p.Stats().Processed)
}

func TestProcessor_PeakHourFlagFollowsLocalHour(t *testing.T) {
	store := &fakeStore{}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	// 00:30Z is 07:30 local, a peak hour
	timestamp := time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)
	msg := sampleMessage(t, "Krukut", timestamp, intPtr(4), nil)

	require.NoError(t, p.Handle(context.Background(), msg))

	require.Len(t, store.increments, 1)
	assert.Equal(t, 7, store.increments[0].hour)
	assert.True(t, store.increments[0].isPeak)
	assert.Nil(t, store.increments[0].aqi)
}

func TestProcessor_MalformedRecordIsAckedAndDropped(t *testing.T) {
	store := &fakeStore{}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	err := p.Handle(context.Background(), kafka.Message{Value: []byte(`{"location":`)})
	require.NoError(t, err)

	invalid := kafka.Message{Value: []byte(`{"timestamp":"2025-01-01T06:00:00Z","location":"X","latitude":0,"longitude":0,"aqi_value":-3,"aqi_category":"Good"}`)}
	err = p.Handle(context.Background(), invalid)
	require.NoError(t, err)

	assert.Empty(t, store.realtime)
	assert.Empty(t, store.increments)
	assert.Equal(t, int64(2), p.Stats().Malformed)
}

func TestProcessor_DuplicateDeliveryIncrementsOnce(t *testing.T) {
	store := &fakeStore{}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	timestamp := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	msg := sampleMessage(t, "Cinere", timestamp, intPtr(3), intPtr(80))

	require.NoError(t, p.Handle(context.Background(), msg))
	require.NoError(t, p.Handle(context.Background(), msg))

	// The real-time upsert is refreshed on both deliveries, the hourly
	// row is incremented only once.
	assert.Len(t, store.realtime, 2)
	assert.Len(t, store.increments, 1)
	assert.Equal(t, int64(1), p.Stats().Duplicates)
}

func TestProcessor_RealtimeFailureLeavesRecordUnacked(t *testing.T) {
	store := &fakeStore{realtimeErr: errors.New("store down")}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	timestamp := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	msg := sampleMessage(t, "Gunung", timestamp, intPtr(1), nil)

	err := p.Handle(context.Background(), msg)
	require.Error(t, err)

	// The guard was never consulted, so the retry still counts as first.
	assert.Empty(t, guard.seen)
	assert.Empty(t, store.increments)
}

func TestProcessor_GuardFailureLeavesRecordUnacked(t *testing.T) {
	store := &fakeStore{}
	guard := newFakeGuard()
	guard.firstErr = errors.New("redis down")
	p := newTestProcessor(t, store, guard)

	timestamp := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	msg := sampleMessage(t, "Gunung", timestamp, nil, intPtr(30))

	err := p.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Empty(t, store.increments)
}

func TestProcessor_IncrementFailureReleasesMarker(t *testing.T) {
	store := &fakeStore{incrementErr: errors.New("store down")}
	guard := newFakeGuard()
	p := newTestProcessor(t, store, guard)

	timestamp := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	msg := sampleMessage(t, "Kemayoran", timestamp, intPtr(5), intPtr(210))

	err := p.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, 1, guard.released)

	// The redelivery counts as first again and completes the increment.
	store.incrementErr = nil
	require.NoError(t, p.Handle(context.Background(), msg))
	require.Len(t, store.increments, 1)
	assert.Equal(t, int64(0), p.Stats().Duplicates)
}

type fakeEvictionStore struct {
	evicted int64
	err     error
	cutoffs []time.Time
}

func (s *fakeEvictionStore) EvictStaleRealtime(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if s.err != nil {
		return 0, s.err
	}
	return s.evicted, nil
}

func TestEvictor_Run(t *testing.T) {
	store := &fakeEvictionStore{evicted: 3}
	e := NewEvictor(store, time.Hour)

	before := time.Now().UTC().Add(-time.Hour)
	e.Run(context.Background())
	after := time.Now().UTC().Add(-time.Hour)

	assert.Equal(t, int64(3), e.Evicted())
	require.Len(t, store.cutoffs, 1)
	cutoff := store.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestEvictor_RunKeepsCountOnError(t *testing.T) {
	store := &fakeEvictionStore{err: errors.New("store down")}
	e := NewEvictor(store, time.Hour)

	e.Run(context.Background())

	assert.Equal(t, int64(0), e.Evicted())
}
