package protocol

// AQICategory is the qualitative band an AQI reading falls into.
type AQICategory string

const (
	AQIGood               AQICategory = "Good"
	AQIModerate           AQICategory = "Moderate"
	AQIUnhealthySensitive AQICategory = "Unhealthy for Sensitive Groups"
	AQIUnhealthy          AQICategory = "Unhealthy"
	AQIVeryUnhealthy      AQICategory = "Very Unhealthy"
	AQIHazardous          AQICategory = "Hazardous"
)

// CategorizeAQI maps an AQI value to its band. Bands are inclusive on
// both ends: 0-50, 51-100, 101-150, 151-200, 201-300, 301+.
func CategorizeAQI(value int) AQICategory {
	switch {
	case value <= 50:
		return AQIGood
	case value <= 100:
		return AQIModerate
	case value <= 150:
		return AQIUnhealthySensitive
	case value <= 200:
		return AQIUnhealthy
	case value <= 300:
		return AQIVeryUnhealthy
	default:
		return AQIHazardous
	}
}

// CategoryFor returns the band for an optional AQI value, or nil when
// the value is absent.
func CategoryFor(value *int) *AQICategory {
	if value == nil {
		return nil
	}
	c := CategorizeAQI(*value)
	return &c
}
