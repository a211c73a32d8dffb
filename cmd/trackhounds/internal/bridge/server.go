// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge exposes the supervisor to UI clients over local HTTP and
// a WebSocket event stream.
//
// Routes:
//
//	GET  /v1/events    WebSocket: status/progress/navigation/dialog push + requests
//	POST /v1/request   one request, JSON reply
//	POST /v1/navigate  publish an app-navigation event
//	GET  /v1/status    current ServiceStatus
//	GET  /healthz      liveness
//	GET  /metrics      Prometheus exposition
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/updater"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
)

const (
	// DefaultListen is the loopback address the bridge binds to.
	DefaultListen = "127.0.0.1:17345"

	// DefaultUpdateInterval is the minimum spacing of update-backend requests.
	DefaultUpdateInterval = 30 * time.Second

	// DefaultPongWait is how long a client may stay silent, pongs included.
	DefaultPongWait = 60 * time.Second

	writeWait = 10 * time.Second
)

// Config configures the bridge server.
type Config struct {
	// Listen is the TCP address. Default: DefaultListen
	Listen string

	// UpdateInterval spaces update-backend requests; one may burst.
	// Default: DefaultUpdateInterval
	UpdateInterval time.Duration

	// PongWait is the read deadline renewed by every frame or pong.
	// Pings go out at 9/10 of it. Default: DefaultPongWait
	PongWait time.Duration
}

// Deps are the bridge's collaborators. Backend, Store and Bus are required.
type Deps struct {
	Backend Backend
	Store   *status.Store
	Bus     *status.Bus
	Updater updater.AppUpdater
	Opener  URLOpener
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server is the bridge HTTP server.
//
// # Thread Safety
//
// Safe for concurrent use. Each WebSocket connection has one writer
// goroutine.
type Server struct {
	cfg     Config
	backend Backend
	store   *status.Store
	bus     *status.Bus
	updater updater.AppUpdater
	opener  URLOpener
	metrics *observability.Metrics
	logger  *slog.Logger
	limiter *rate.Limiter
	router  *gin.Engine

	upgrader websocket.Upgrader
	done     chan struct{}
}

// New creates the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opener := deps.Opener
	if opener == nil {
		opener = LogOpener{Logger: logger}
	}

	s := &Server{
		cfg:     cfg,
		backend: deps.Backend,
		store:   deps.Store,
		bus:     deps.Bus,
		updater: deps.Updater,
		opener:  opener,
		metrics: deps.Metrics,
		logger:  logger.With("component", "bridge"),
		limiter: rate.NewLimiter(rate.Every(cfg.UpdateInterval), 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: localOrigin,
		},
		done: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("trackhounds-bridge"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.POST("/request", s.handleRequest)
		v1.POST("/navigate", s.handleNavigate)
		v1.GET("/events", s.handleEvents)
	}
	return router
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.logger.Info("bridge listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		close(s.done)
		return err
	case <-ctx.Done():
	}

	close(s.done)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// HTTP handlers
// =============================================================================

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Status())
}

func (s *Server) handleRequest(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Type: ResponseError, Error: err.Error()})
		return
	}

	resp, err := s.Handle(c.Request.Context(), req)
	switch {
	case errors.Is(err, ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, Response{Type: ResponseError, Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, Response{Type: ResponseError, Error: err.Error()})
	case resp == nil:
		c.Status(http.StatusAccepted)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

type navigateRequest struct {
	Route string `json:"route" binding:"required"`
}

func (s *Server) handleNavigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Type: ResponseError, Error: err.Error()})
		return
	}
	s.store.Navigate(req.Route)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// WebSocket
// =============================================================================

// handleEvents upgrades to a WebSocket, replays the latest status and
// progress, then streams bus events and answers request frames.
func (s *Server) handleEvents(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ctx := c.Request.Context()
	s.metrics.ClientConnected(ctx, 1)
	defer s.metrics.ClientConnected(ctx, -1)

	sub := s.bus.Subscribe()
	replies := make(chan any, 4)
	closed := make(chan struct{})

	replay := []any{status.Event{Channel: status.ChannelDockerStatus, Data: s.store.Snapshot()}}
	if p, ok := s.store.LastProgress(); ok {
		replay = append(replay, status.Event{Channel: status.ChannelSetupProgress, Data: p})
	}

	writerDone := make(chan struct{})
	util.SafeGo(func() {
		defer close(writerDone)
		// Closing the conn unblocks readLoop when the writer stops first.
		defer ws.Close()
		s.writeLoop(ws, sub, replay, replies, closed)
	}, util.LogPanic(s.logger, "bridge writer"))

	s.logger.Info("event client connected", "remote", c.Request.RemoteAddr)
	s.readLoop(ctx, ws, replies, writerDone, closed)
	s.logger.Info("event client disconnected", "remote", c.Request.RemoteAddr)

	close(closed)
	sub.Close()
	<-writerDone
	ws.Close()
}

// readLoop decodes request frames until the client goes away.
//
// Each request is answered on its own goroutine: update-backend can run
// for minutes, and the loop must keep reading to see pongs before the
// read deadline passes.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, replies chan<- any, writerDone, closed <-chan struct{}) {
	ws.SetReadLimit(64 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		var req Request
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		util.SafeGo(func() {
			s.answer(ctx, req, replies, writerDone, closed)
		}, util.LogPanic(s.logger, "bridge request "+req.Type))
	}
}

// answer handles one request frame and queues the reply for writeLoop.
// The reply is dropped if the connection has gone away meanwhile.
func (s *Server) answer(ctx context.Context, req Request, replies chan<- any, writerDone, closed <-chan struct{}) {
	resp, err := s.Handle(ctx, req)
	var reply any
	switch {
	case err != nil:
		reply = Response{Type: ResponseError, Error: err.Error()}
	case resp != nil:
		reply = resp
	default:
		return
	}
	select {
	case replies <- reply:
	case <-writerDone:
	case <-closed:
	case <-s.done:
	}
}

// writeLoop is the only writer on ws.
func (s *Server) writeLoop(ws *websocket.Conn, sub *status.Subscription, replay []any, replies <-chan any, closed <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PongWait * 9 / 10)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(v); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}

	for _, v := range replay {
		if !write(v) {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-s.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case e, ok := <-sub.C:
			if !ok || !write(e) {
				return
			}
		case r := <-replies:
			if !write(r) {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// localOrigin accepts requests without an Origin header, from loopback
// hosts, and from file:// or app:// pages.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file", "app":
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
