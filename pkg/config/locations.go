package config

import (
	"fmt"
	"os"

	"github.com/jszwec/csvutil"
)

// Location is one monitored geographic point.
type Location struct {
	Name      string  `csv:"name"`
	StationID string  `csv:"station_id"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
}

// DefaultLocations returns the built-in Jakarta monitoring points used when
// no locations file is configured.
func DefaultLocations() []Location {
	return []Location{
		{Name: "Kebon Sirih", StationID: "A521365", Latitude: -6.1861, Longitude: 106.8236},
		{Name: "Krukut", StationID: "A495982", Latitude: -6.1593, Longitude: 106.8180},
		{Name: "GBK, Gelora", StationID: "A416842", Latitude: -6.2154, Longitude: 106.8030},
		{Name: "Jakarta Timur Kebon Nanas", StationID: "A531565", Latitude: -6.2338, Longitude: 106.8769},
		{Name: "Tangerang Benteng Betawi", StationID: "A515938", Latitude: -6.1756, Longitude: 106.6449},
		{Name: "Kedoya Utara", StationID: "A521380", Latitude: -6.1714, Longitude: 106.7622},
		{Name: "Grogol Utara", StationID: "A570235", Latitude: -6.2224, Longitude: 106.7883},
		{Name: "Gunung", StationID: "A537937", Latitude: -6.2373, Longitude: 106.7861},
		{Name: "Cinere", StationID: "A511573", Latitude: -6.3498, Longitude: 106.7782},
		{Name: "Kemayoran", StationID: "@8294", Latitude: -6.1911, Longitude: 106.8491},
	}
}

// LoadLocations reads the monitored locations from a CSV file with a
// name,station_id,latitude,longitude header. An empty path selects the
// built-in default set.
func LoadLocations(path string) ([]Location, error) {
	if path == "" {
		return DefaultLocations(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file %s: %w", path, err)
	}

	var locations []Location
	if err := csvutil.Unmarshal(data, &locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations file %s: %w", path, err)
	}

	if len(locations) == 0 {
		return nil, fmt.Errorf("locations file %s contains no locations", path)
	}

	for _, location := range locations {
		if location.Name == "" {
			return nil, fmt.Errorf("locations file %s: location with empty name", path)
		}
		if location.Latitude < -90 || location.Latitude > 90 {
			return nil, fmt.Errorf("locations file %s: invalid latitude %f for %s", path, location.Latitude, location.Name)
		}
		if location.Longitude < -180 || location.Longitude > 180 {
			return nil, fmt.Errorf("locations file %s: invalid longitude %f for %s", path, location.Longitude, location.Name)
		}
	}

	return locations, nil
}
