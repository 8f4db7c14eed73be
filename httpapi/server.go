// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/cohorts/core"
)

// Querier answers the read-only queries served over HTTP.
// *search.Searcher implements it.
type Querier interface {
	FindSimilar(ctx context.Context, query core.SimilarityQuery) (*core.SimilarityResult, error)
	Lookup(ctx context.Context, email, cookie string) (*core.Profile, error)
}

// Options configures the HTTP server. Zero values fall back to defaults.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the query surface.
type Server struct {
	querier Querier
	logger  *slog.Logger
	opts    Options
	echo    *echo.Echo
}

// NewServer creates a server answering queries with querier.
func NewServer(querier Querier, logger *slog.Logger, opts Options) (*Server, error) {
	if querier == nil {
		return nil, errors.New("httpapi: querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		querier: querier,
		logger:  logger.With("component", "httpapi"),
		opts:    opts,
	}
	s.echo = s.routes()
	return s, nil
}

// Handler returns the routed handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Error("http request failed", append(attrs, "err", v.Error)...)
				return nil
			}
			s.logger.Info("http request", attrs...)
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/user", s.handleUser)
	e.GET("/similar_users", s.handleSimilarUsers)
	return e
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.echo,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", "err", err)
		}
	}()

	s.logger.Info("query server started", "addr", s.opts.Addr)
	if err := s.echo.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info("query server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("unhandled error", "err", err)
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}
