package health

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// pingTimeout bounds each dependency check during readiness probes.
const pingTimeout = 2 * time.Second

// Pinger reports whether an external dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler serves liveness and readiness endpoints for one process.
type Handler struct {
	registry *Registry
	checks   map[string]Pinger
}

// NewHandler creates a new health handler.
func NewHandler(registry *Registry, checks map[string]Pinger) *Handler {
	return &Handler{
		registry: registry,
		checks:   checks,
	}
}

// RegisterRoutes mounts the health endpoints on a gin router.
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)
}

// Healthz reports process liveness and per-component heartbeat freshness.
func (h *Handler) Healthz(c *gin.Context) {
	components := h.registry.Snapshot()
	sort.Slice(components, func(i, j int) bool {
		return components[i].Name < components[j].Name
	})

	status := "ok"
	code := http.StatusOK
	for _, component := range components {
		if !component.Healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
	})
}

// Readyz pings every registered dependency and reports readiness.
func (h *Handler) Readyz(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		err := h.checks[name].Ping(ctx)
		cancel()

		if err != nil {
			results[name] = err.Error()
			ready = false
		} else {
			results[name] = "ok"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"checks": results,
	})
}

// Server runs the health endpoints as a standalone HTTP listener for
// processes that expose no other HTTP surface.
type Server struct {
	srv *http.Server
}

// NewServer creates a new standalone health server listening on addr.
func NewServer(addr string, handler *Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: router,
		},
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
