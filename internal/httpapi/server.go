package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/auth"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/globaltime"
	"horse.fit/crashreports/internal/metrics"
	"horse.fit/crashreports/internal/queue"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// Store is the read side the API needs. *db.Pool satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	ListIncidents(ctx context.Context, opts db.ListIncidentsOptions) ([]db.Incident, error)
	FindIncidentBySlug(ctx context.Context, slug string) (*db.Incident, error)
	ListSources(ctx context.Context, incidentID int64) ([]db.IncidentSource, error)
	LatestIngestRun(ctx context.Context) (*db.IngestRun, error)
}

type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
	Admin              auth.AdminCredentials
}

type Server struct {
	store   Store
	queue   queue.Queue
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    Options
}

func NewServer(store Store, q queue.Queue, m *metrics.Metrics, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		store:   store,
		queue:   q,
		metrics: m,
		logger:  logger,
		opts: Options{
			Host:               host,
			Port:               port,
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			CORSAllowedOrigins: origins,
			Admin:              opts.Admin,
		},
	}
}

// Handler builds the echo router. Start serves it; tests call it directly.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/incidents", s.handleIncidents)
	api.GET("/incidents/:slug", s.handleIncidentDetail)

	admin := api.Group("/admin", s.requireAdmin())
	admin.GET("/incidents", s.handleAdminIncidents)
	admin.GET("/ingest-runs/latest", s.handleLatestIngestRun)
	admin.POST("/incidents/:slug/regenerate", s.handleRegenerate)
	admin.GET("/incidents/:slug/validation", s.handleValidation)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Bool("admin_enabled", s.opts.Admin.Configured()).Msg("crashreports web server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("crashreports web server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	isAPI := strings.HasPrefix(c.Request().URL.Path, "/api/")
	if isAPI {
		if status >= 500 {
			_ = internalError(c, "Internal server error")
			return
		}
		_ = fail(c, status, message, nil)
		return
	}

	_ = c.String(status, message)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	database := "ok"
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check database ping failed")
		database = "unavailable"
	}
	body := map[string]any{
		"service":  "crashreports",
		"database": database,
		"time":     globaltime.UTC(),
	}
	if database != "ok" {
		return c.JSON(http.StatusServiceUnavailable, jsendResponse{Status: "fail", Data: body})
	}
	return success(c, body)
}

func (s *Server) handleLatestIngestRun(c echo.Context) error {
	run, err := s.store.LatestIngestRun(c.Request().Context())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failNotFound(c, "No ingest runs recorded")
		}
		s.logger.Error().Err(err).Msg("query latest ingest run failed")
		return internalError(c, "Failed to load ingest run")
	}
	return success(c, buildIngestRunResponse(run))
}

type pageParams struct {
	Page     int
	PageSize int
}

func parsePage(c echo.Context) (pageParams, map[string]string) {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return pageParams{}, map[string]string{"page": err.Error()}
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return pageParams{}, map[string]string{"page_size": err.Error()}
	}
	return pageParams{Page: page, PageSize: pageSize}, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
