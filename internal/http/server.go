// Package http provides the HTTP API for discoveryd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fernhill/discoveryd/internal/candidate"
	"github.com/fernhill/discoveryd/internal/engine"
	"github.com/fernhill/discoveryd/internal/expander"
	"github.com/fernhill/discoveryd/internal/vectorstore"
)

// Server provides HTTP endpoints for the discovery engine.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	store    vectorstore.Store
	defaults candidate.RankingConfig
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server. store is used only for the readiness
// probe; the engine already degrades on its own when the backend is down.
func NewServer(eng *engine.Engine, store vectorstore.Store, defaults candidate.RankingConfig, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("http: engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("http: logger is required")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8480}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		engine:   eng,
		store:    store,
		defaults: defaults,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/recommend", s.handleRecommend)
	v1.GET("/trending", s.handleTrending)
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query           string   `json:"query"`
	ContentTypes    []string `json:"content_types,omitempty"`
	Category        string   `json:"category,omitempty"`
	Since           string   `json:"since,omitempty"`
	PreviousQueries []string `json:"previous_queries,omitempty"`
	UserInterests   []string `json:"user_interests,omitempty"`
	SearchMode      string   `json:"search_mode,omitempty"`

	Options *RankingOptions `json:"options,omitempty"`
}

// RecommendRequest is the request body for POST /api/v1/recommend.
type RecommendRequest struct {
	UserID       string   `json:"user_id"`
	ContentTypes []string `json:"content_types,omitempty"`
	Category     string   `json:"category,omitempty"`

	Options *RankingOptions `json:"options,omitempty"`
}

// RankingOptions overrides the server-side ranking defaults per request.
// Pointer fields distinguish "absent" from zero.
type RankingOptions struct {
	ScoreThreshold     *float64 `json:"score_threshold,omitempty"`
	DiversityThreshold *float64 `json:"diversity_threshold,omitempty"`
	TimeDecayFactor    *float64 `json:"time_decay_factor,omitempty"`
	EnableDiversity    *bool    `json:"enable_diversity,omitempty"`
	EnableSerendipity  *bool    `json:"enable_serendipity,omitempty"`
	SerendipityFactor  *float64 `json:"serendipity_factor,omitempty"`
	Limit              *int     `json:"limit,omitempty"`
	Algorithm          *string  `json:"algorithm,omitempty"`
	VectorWeight       *float64 `json:"vector_weight,omitempty"`
	EngagementWeight   *float64 `json:"engagement_weight,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response body for GET /readyz.
type ReadyResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports whether the similarity backend is reachable. The
// service still serves keyword fallback when it is not, so a not-ready
// backend degrades the response body but keeps the 200 status.
func (s *Server) handleReady(c echo.Context) error {
	resp := ReadyResponse{Status: "ready", VectorStore: "ready"}
	if s.store == nil || !s.store.IsReady(c.Request().Context()) {
		resp.VectorStore = "unavailable"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	types, err := parseContentTypes(req.ContentTypes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	since, err := parseSince(req.Since)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	engReq := engine.Request{
		Query:        req.Query,
		ContentTypes: types,
		Category:     req.Category,
		Since:        since,
		Expansion: expander.Context{
			PreviousQueries: req.PreviousQueries,
			UserInterests:   req.UserInterests,
			SearchMode:      expander.SearchMode(req.SearchMode),
		},
		Config: applyOptions(s.defaults, req.Options),
	}

	resp, err := s.engine.Search(c.Request().Context(), engReq)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecommend(c echo.Context) error {
	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid recommend request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	types, err := parseContentTypes(req.ContentTypes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	engReq := engine.Request{
		UserID:       req.UserID,
		ContentTypes: types,
		Category:     req.Category,
		Config:       applyOptions(s.defaults, req.Options),
	}

	resp, err := s.engine.Recommend(c.Request().Context(), engReq)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleTrending serves GET /api/v1/trending?category=...&since=...&limit=...
func (s *Server) handleTrending(c echo.Context) error {
	since, err := parseSince(c.QueryParam("since"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := s.defaults
	if raw := c.QueryParam("limit"); raw != "" {
		var limit int
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		cfg.Limit = limit
	}

	engReq := engine.Request{
		Category: c.QueryParam("category"),
		Since:    since,
		Config:   cfg,
	}

	resp, err := s.engine.Trending(c.Request().Context(), engReq)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// mapError translates engine errors to HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery),
		errors.Is(err, engine.ErrEmptyUserID),
		errors.Is(err, candidate.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func parseContentTypes(raw []string) ([]candidate.ContentType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	types := make([]candidate.ContentType, len(raw))
	for i, r := range raw {
		ct := candidate.ContentType(r)
		if !ct.Valid() {
			return nil, fmt.Errorf("unknown content type %q", r)
		}
		types[i] = ct
	}
	return types, nil
}

func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since timestamp %q, want RFC3339", raw)
	}
	return t, nil
}

// applyOptions overlays per-request overrides on the server defaults.
func applyOptions(base candidate.RankingConfig, opts *RankingOptions) candidate.RankingConfig {
	if opts == nil {
		return base
	}
	if opts.ScoreThreshold != nil {
		base.ScoreThreshold = *opts.ScoreThreshold
	}
	if opts.DiversityThreshold != nil {
		base.DiversityThreshold = *opts.DiversityThreshold
	}
	if opts.TimeDecayFactor != nil {
		base.TimeDecayFactor = *opts.TimeDecayFactor
	}
	if opts.EnableDiversity != nil {
		base.EnableDiversityFiltering = *opts.EnableDiversity
	}
	if opts.EnableSerendipity != nil {
		base.EnableSerendipity = *opts.EnableSerendipity
	}
	if opts.SerendipityFactor != nil {
		base.SerendipityFactor = *opts.SerendipityFactor
	}
	if opts.Limit != nil {
		base.Limit = *opts.Limit
	}
	if opts.Algorithm != nil {
		base.Algorithm = candidate.Algorithm(*opts.Algorithm)
	}
	if opts.VectorWeight != nil {
		base.VectorWeight = *opts.VectorWeight
	}
	if opts.EngagementWeight != nil {
		base.EngagementWeight = *opts.EngagementWeight
	}
	return base
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
