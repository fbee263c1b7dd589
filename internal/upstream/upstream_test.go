package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = Site{
	Name:      "Kebon Sirih",
	StationID: "A521365",
	Latitude:  -6.1861,
	Longitude: 106.8236,
}

func TestTrafficLevelFromSpeeds_Bands(t *testing.T) {
	cases := []struct {
		freeFlow float64
		current  float64
		want     int
	}{
		{50, 50, 1},  // free flowing
		{50, 46, 1},  // 8% loss
		{50, 45, 2},  // 10% loss
		{50, 36, 2},  // 28% loss
		{50, 35, 3},  // 30% loss
		{50, 26, 3},  // 48% loss
		{50, 25, 4},  // 50% loss
		{50, 16, 4},  // 68% loss
		{50, 15, 5},  // 70% loss
		{50, 0, 5},   // standstill
		{50, 60, 1},  // faster than free flow
		{0, 30, 1},   // no free-flow reference
		{-10, 30, 1}, // nonsense reference
	}

	for _, tc := range cases {
		got := TrafficLevelFromSpeeds(tc.freeFlow, tc.current)
		assert.Equal(t, tc.want, got, "freeFlow=%v current=%v", tc.freeFlow, tc.current)
	}
}

func TestTrafficClient_FetchDerivesLevel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "point=")
		assert.Contains(t, r.URL.RawQuery, "key=secret")
		fmt.Fprint(w, `{"flowSegmentData":{"currentSpeed":25,"freeFlowSpeed":50}}`)
	}))
	defer server.Close()

	client := NewTrafficClient(server.URL, "secret", time.Second)
	result := client.Fetch(context.Background(), testSite)

	require.Equal(t, StatusOK, result.Status, result.Reason)
	assert.Equal(t, 4, result.Value)
}

func TestTrafficClient_ServerFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewTrafficClient(server.URL, "secret", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusTransient, result.Status)
	assert.NotEmpty(t, result.Reason)
}

func TestTrafficClient_RejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewTrafficClient(server.URL, "bad-key", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusPermanent, result.Status)
}

func TestTrafficClient_UnreachableHostIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewTrafficClient(server.URL, "secret", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusTransient, result.Status)
}

func TestAQIClient_FetchReadsStation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/A521365/", r.URL.Path)
		assert.Equal(t, "token-1", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"status":"ok","data":{"aqi":57}}`)
	}))
	defer server.Close()

	client := NewAQIClient(server.URL, "token-1", time.Second)
	result := client.Fetch(context.Background(), testSite)

	require.Equal(t, StatusOK, result.Status, result.Reason)
	assert.Equal(t, 57, result.Value)
}

func TestAQIClient_AcceptsStringReading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"aqi":"42"}}`)
	}))
	defer server.Close()

	client := NewAQIClient(server.URL, "token-1", time.Second)
	result := client.Fetch(context.Background(), testSite)

	require.Equal(t, StatusOK, result.Status, result.Reason)
	assert.Equal(t, 42, result.Value)
}

func TestAQIClient_IdleStationIsPermanent(t *testing.T) {
	// The station reports "-" while it has no current reading.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"aqi":"-"}}`)
	}))
	defer server.Close()

	client := NewAQIClient(server.URL, "token-1", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusPermanent, result.Status)
}

func TestAQIClient_FeedErrorStatusIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","data":{"aqi":null}}`)
	}))
	defer server.Close()

	client := NewAQIClient(server.URL, "token-1", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusPermanent, result.Status)
}

func TestAQIClient_ServerFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewAQIClient(server.URL, "token-1", time.Second)
	result := client.Fetch(context.Background(), testSite)

	assert.Equal(t, StatusTransient, result.Status)
}

func TestCoerceAQI(t *testing.T) {
	value, ok := coerceAQI(float64(88))
	assert.True(t, ok)
	assert.Equal(t, 88, value)

	value, ok = coerceAQI("104")
	assert.True(t, ok)
	assert.Equal(t, 104, value)

	_, ok = coerceAQI("-")
	assert.False(t, ok)

	_, ok = coerceAQI(nil)
	assert.False(t, ok)
}

func TestFakeClient_RepeatsLastScriptedResult(t *testing.T) {
	fake := NewFakeClient()
	fake.QueueTraffic(testSite.Name, OK(2), OK(3))

	assert.Equal(t, 2, fake.FetchTraffic(context.Background(), testSite).Value)
	assert.Equal(t, 3, fake.FetchTraffic(context.Background(), testSite).Value)
	assert.Equal(t, 3, fake.FetchTraffic(context.Background(), testSite).Value)
	assert.Equal(t, 3, fake.TrafficCalls[testSite.Name])

	unscripted := fake.FetchAQI(context.Background(), testSite)
	assert.Equal(t, StatusTransient, unscripted.Status)
}
