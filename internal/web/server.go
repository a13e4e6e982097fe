// SPDX-License-Identifier: MIT

// Package web serves the browser viewer, the frame websocket and a small JSON
// control API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philcrump/limesdr-fft/internal/analysis"
	"github.com/philcrump/limesdr-fft/internal/archive"
	"github.com/philcrump/limesdr-fft/internal/capture"
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"github.com/philcrump/limesdr-fft/internal/pipeline"
	"github.com/philcrump/limesdr-fft/internal/transport"
	"github.com/philcrump/limesdr-fft/pkg/build"
)

const (
	shutdownTimeout     = 5 * time.Second
	defaultArchiveLimit = 10
	maxArchiveLimit     = 100
)

// Averaging is the part of the analysis processor the API controls.
type Averaging interface {
	Size() int
	AverageDepth() int
	MaxAverageDepth() int
	SetAverageDepth(k int) error
}

// Viewers is the websocket endpoint.
type Viewers interface {
	http.Handler
	Count() int
}

// Archive is the snapshot store read by /api/archive.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]archive.Snapshot, error)
}

// Options wires the server to the running pipeline. Nil stat funcs report
// zero values.
type Options struct {
	Listen    string
	HTDocs    string
	Averaging Averaging
	Viewers   Viewers
	Sequence  func() uint64
	Pipeline  func() pipeline.Stats
	Broadcast func() transport.BroadcastStats
	Capture   func() capture.RingStats
	Archive   Archive // nil when archiving is disabled
}

// Status is the /api/status document.
type Status struct {
	Build           build.Info               `json:"build"`
	Uptime          string                   `json:"uptime"`
	Sequence        uint64                   `json:"sequence"`
	FFTSize         int                      `json:"fft_size"`
	AverageDepth    int                      `json:"average_depth"`
	MaxAverageDepth int                      `json:"max_average_depth"`
	Viewers         int                      `json:"viewers"`
	Pipeline        pipeline.Stats           `json:"pipeline"`
	Broadcast       transport.BroadcastStats `json:"broadcast"`
	Capture         capture.RingStats        `json:"capture"`
}

type averageRequest struct {
	Depth *int `json:"depth" binding:"required"`
}

// Server is the HTTP front end.
type Server struct {
	opts    Options
	engine  *gin.Engine
	server  *http.Server
	started time.Time
}

// NewServer builds the router. It does not listen until Run.
func NewServer(opts Options) (*Server, error) {
	if opts.Averaging == nil || opts.Viewers == nil {
		return nil, errors.New("web: averaging and viewers are required")
	}

	if applog.GetLevel() > applog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		opts:    opts,
		engine:  engine,
		started: time.Now(),
	}

	engine.GET("/fft", gin.WrapH(opts.Viewers))
	api := engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/average", s.handleGetAverage)
		api.PUT("/average", s.handleSetAverage)
		api.GET("/archive", s.handleArchive)
	}
	if opts.HTDocs != "" {
		engine.StaticFile("/", opts.HTDocs+"/index.html")
		engine.Static("/static", opts.HTDocs)
	}

	s.server = &http.Server{
		Addr:              opts.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("web: listen on %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	applog.Infof("Web: Serving viewer on http://%s/", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	<-errCh
	applog.Infof("Web: Server stopped")
	return nil
}

// Snapshot collects the current status.
func (s *Server) Snapshot() Status {
	st := Status{
		Build:           build.GetBuildInfo(),
		Uptime:          time.Since(s.started).Truncate(time.Second).String(),
		FFTSize:         s.opts.Averaging.Size(),
		AverageDepth:    s.opts.Averaging.AverageDepth(),
		MaxAverageDepth: s.opts.Averaging.MaxAverageDepth(),
		Viewers:         s.opts.Viewers.Count(),
	}
	if s.opts.Sequence != nil {
		st.Sequence = s.opts.Sequence()
	}
	if s.opts.Pipeline != nil {
		st.Pipeline = s.opts.Pipeline()
	}
	if s.opts.Broadcast != nil {
		st.Broadcast = s.opts.Broadcast()
	}
	if s.opts.Capture != nil {
		st.Capture = s.opts.Capture()
	}
	return st
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Snapshot())
}

func (s *Server) handleGetAverage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"depth":     s.opts.Averaging.AverageDepth(),
		"max_depth": s.opts.Averaging.MaxAverageDepth(),
	})
}

func (s *Server) handleSetAverage(c *gin.Context) {
	var req averageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.opts.Averaging.SetAverageDepth(*req.Depth); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analysis.ErrAverageDepth) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	applog.Infof("Web: Averaging depth set to %d by %s", *req.Depth, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"depth":     s.opts.Averaging.AverageDepth(),
		"max_depth": s.opts.Averaging.MaxAverageDepth(),
	})
}

func (s *Server) handleArchive(c *gin.Context) {
	if s.opts.Archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive disabled"})
		return
	}
	limit := defaultArchiveLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxArchiveLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be in [1, %d]", maxArchiveLimit)})
			return
		}
		limit = n
	}
	snapshots, err := s.opts.Archive.Recent(c.Request.Context(), limit)
	if err != nil {
		applog.Warnf("Web: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snapshots == nil {
		snapshots = []archive.Snapshot{}
	}
	c.JSON(http.StatusOK, snapshots)
}

// requestLogger logs API requests at debug level through the application
// logger instead of gin's default writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		applog.Debugf("Web: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
