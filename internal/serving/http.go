package serving

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/health"
)

// maxSeriesDays bounds the hourly series query window.
const maxSeriesDays = 90

// HourlyPoint is one hourly aggregation in an API response.
type HourlyPoint struct {
	Date            string   `json:"date"`
	Hour            int      `json:"hour"`
	Location        string   `json:"location"`
	AvgTrafficLevel *float64 `json:"avg_traffic_level"`
	TrafficCount    int      `json:"traffic_count"`
	AvgAQIValue     *float64 `json:"avg_aqi_value"`
	AQICount        int      `json:"aqi_count"`
	TotalRecords    int      `json:"total_records"`
	IsPeakHour      bool     `json:"is_peak_hour"`
}

// PeakResponse is the peak-hour summary of one date.
type PeakResponse struct {
	AnalysisDate        string   `json:"analysis_date"`
	PeakAQIHour         *int     `json:"peak_aqi_hour"`
	PeakAQIValue        *float64 `json:"peak_aqi_value"`
	PeakAQILocation     *string  `json:"peak_aqi_location"`
	PeakTrafficHour     *int     `json:"peak_traffic_hour"`
	PeakTrafficValue    *float64 `json:"peak_traffic_value"`
	PeakTrafficLocation *string  `json:"peak_traffic_location"`
}

// LocationInfo is one monitored location in an API response.
type LocationInfo struct {
	Name      string  `json:"name"`
	StationID string  `json:"station_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Server is the HTTP API over the serving service.
type Server struct {
	service       *Service
	defaultMaxAge time.Duration
	srv           *http.Server
}

// NewServer creates the API server. Health endpoints are mounted on
// the same router.
func NewServer(addr string, service *Service, defaultMaxAge time.Duration, healthHandler *health.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	s := &Server{
		service:       service,
		defaultMaxAge: defaultMaxAge,
	}

	api := router.Group("/api/v1")
	api.GET("/view", s.handleView)
	api.GET("/hourly", s.handleHourly)
	api.GET("/peak-hours/:date", s.handlePeak)
	api.GET("/locations", s.handleLocations)

	healthHandler.RegisterRoutes(router)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// requestID tags every request with an ID for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// Start begins serving and blocks until the server is shut down.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleView(c *gin.Context) {
	maxAge := s.defaultMaxAge
	if raw := c.Query("max_age_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_seconds must be a positive integer"})
			return
		}
		maxAge = time.Duration(seconds) * time.Second
	}

	rows, source, err := s.service.GetUnifiedView(c.Request.Context(), maxAge)
	if err != nil {
		s.storeError(c, "unified view", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": source,
		"count":  len(rows),
		"rows":   rows,
	})
}

func (s *Server) handleHourly(c *gin.Context) {
	days := 1
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSeriesDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer in 1..90"})
			return
		}
		days = parsed
	}

	rows, err := s.service.GetHourlySeries(c.Request.Context(), days)
	if err != nil {
		s.storeError(c, "hourly series", err)
		return
	}

	points := make([]HourlyPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, hourlyPoint(row))
	}

	c.JSON(http.StatusOK, gin.H{
		"days":  days,
		"count": len(points),
		"rows":  points,
	})
}

func (s *Server) handlePeak(c *gin.Context) {
	date := c.Param("date")

	summary, err := s.service.GetPeakSummary(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidDate.Error()})
			return
		}
		s.storeError(c, "peak summary", err)
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no peak summary for " + date})
		return
	}

	c.JSON(http.StatusOK, PeakResponse{
		AnalysisDate:        summary.AnalysisDate,
		PeakAQIHour:         summary.PeakAQIHour,
		PeakAQIValue:        summary.PeakAQIValue,
		PeakAQILocation:     summary.PeakAQILocation,
		PeakTrafficHour:     summary.PeakTrafficHour,
		PeakTrafficValue:    summary.PeakTrafficValue,
		PeakTrafficLocation: summary.PeakTrafficLocation,
	})
}

func (s *Server) handleLocations(c *gin.Context) {
	locations, err := s.service.GetLocations(c.Request.Context())
	if err != nil {
		s.storeError(c, "locations", err)
		return
	}

	infos := make([]LocationInfo, 0, len(locations))
	for _, location := range locations {
		infos = append(infos, LocationInfo{
			Name:      location.Name,
			StationID: location.StationID,
			Latitude:  location.Latitude,
			Longitude: location.Longitude,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(infos),
		"locations": infos,
	})
}

// storeError maps a failed read to a response: transient store outages
// are 503, anything else is 500. The error is never hidden behind an
// empty result.
func (s *Server) storeError(c *gin.Context, op string, err error) {
	requestID := c.GetString("request_id")
	log.Printf("Request %s: failed to serve %s: %v", requestID, op, err)

	if errors.Is(err, database.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func hourlyPoint(row *database.HourlyRow) HourlyPoint {
	return HourlyPoint{
		Date:            row.Date,
		Hour:            row.Hour,
		Location:        row.Location,
		AvgTrafficLevel: row.AvgTrafficLevel,
		TrafficCount:    row.TrafficCount,
		AvgAQIValue:     row.AvgAQIValue,
		AQICount:        row.AQICount,
		TotalRecords:    row.TotalRecords,
		IsPeakHour:      row.IsPeakHour,
	}
}
