package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/logging"
	"townhall/internal/queue"
	"townhall/internal/services"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService
	engine   *gin.Engine

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	gin.SetMode(gin.ReleaseMode)
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Paths.APIBind),
		logger:   logging.NewComponentLogger(logger, "api"),
		daemon:   d,
		queueSvc: d.queueSvc,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), srv.requestLogger())
	engine.GET("/healthz", srv.handleHealth)
	engine.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	group := engine.Group("/api", authMiddleware(cfg.API.JWTSecret, cfg.API.JWTIssuer))
	group.GET("/status", srv.handleStatus)
	group.GET("/jobs", srv.handleListJobs)
	group.POST("/jobs", srv.handleEnqueue)
	group.POST("/jobs/retry", srv.handleRetry)
	group.GET("/jobs/:id", srv.handleGetJob)
	group.DELETE("/jobs/:id", srv.handleRemoveJob)
	group.GET("/videos/:id", srv.handleGetVideo)

	srv.engine = engine
	return srv
}

func (s *apiServer) start() error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestLogger tags each request with a correlation id, taken from
// X-Request-ID when the caller supplies one.
func (s *apiServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithCorrelationID(c.Request.Context(), id))
		c.Next()
		logging.WithContext(c.Request.Context(), s.logger).Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *apiServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status(c.Request.Context()))
}

func (s *apiServer) handleListJobs(c *gin.Context) {
	var statuses []queue.Status
	for _, value := range c.QueryArray("status") {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := queue.ParseStatus(part)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			statuses = append(statuses, status)
		}
	}
	jobs, err := s.queueSvc.List(c.Request.Context(), statuses...)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleGetJob(c *gin.Context) {
	job, err := s.queueSvc.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleEnqueue(c *gin.Context) {
	var req api.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_id and input_locator are required"})
		return
	}
	job, created, err := s.queueSvc.Enqueue(c.Request.Context(), req.VideoID, req.InputLocator)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrInvalidJob):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, api.ErrVideoEncoded):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.internalError(c, err)
		}
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, api.EnqueueResponse{Job: job, Created: created})
}

func (s *apiServer) handleRetry(c *gin.Context) {
	var req api.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid retry request"})
		return
	}
	ctx := c.Request.Context()
	ids := req.IDs
	if len(ids) == 0 {
		failed, err := s.queueSvc.FailedIDs(ctx)
		if err != nil {
			s.internalError(c, err)
			return
		}
		ids = failed
	}
	result, err := api.RetryFailedJobsByID(ctx, s.queueSvc, ids)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *apiServer) handleRemoveJob(c *gin.Context) {
	removed, err := s.queueSvc.Remove(c.Request.Context(), []string{c.Param("id")})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RemoveResponse{Removed: removed})
}

func (s *apiServer) handleGetVideo(c *gin.Context) {
	record, err := s.daemon.Video(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	c.JSON(http.StatusOK, api.FromVideo(record))
}

func (s *apiServer) internalError(c *gin.Context, err error) {
	logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed",
		logging.String("path", c.FullPath()),
		logging.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
