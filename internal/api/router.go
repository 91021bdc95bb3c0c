package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the middleware stack and the operational endpoints
type RouterOptions struct {
	MaxUploadSize  string
	AllowedOrigins []string
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	// AnalyzerState reports the circuit breaker state on /health
	AnalyzerState func() string
	// AccessLog toggles per-request logging
	AccessLog bool
}

// NewRouter builds the echo instance serving the dashboard API
func NewRouter(h *ReportHandler, opts RouterOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	if len(opts.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  opts.AllowedOrigins,
			ExposeHeaders: []string{echo.HeaderContentDisposition, HeaderSignature, HeaderDigest},
		}))
	} else {
		e.Use(middleware.CORS())
	}

	sessions := e.Group("/sessions")
	if opts.MaxUploadSize != "" {
		sessions.Use(middleware.BodyLimit(opts.MaxUploadSize))
	}
	h.RegisterRoutes(sessions)

	// Health Check
	e.GET("/health", func(c echo.Context) error {
		body := map[string]string{"status": "ok"}
		if opts.AnalyzerState != nil {
			body["analyzer"] = opts.AnalyzerState()
		}
		return c.JSON(http.StatusOK, body)
	})

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return e
}
