package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sipeed/picochat/pkg/logger"
)

// StatusFunc reports one section of the /status document.
type StatusFunc func() map[string]interface{}

// Server exposes health and status over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	addr       string
	sections   map[string]StatusFunc
	startedAt  time.Time
}

func NewServer(host string, port int, sections map[string]StatusFunc) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:    router,
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		sections:  sections,
		startedAt: time.Now(),
	}

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", health)
	router.HEAD("/health", health)
	router.GET("/status", s.status)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) status(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	body := gin.H{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	for name, fn := range s.sections {
		if fn != nil {
			body[name] = fn()
		}
	}
	c.JSON(http.StatusOK, body)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.DebugCF("gateway", "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.InfoCF("gateway", "Status server listening", map[string]interface{}{
		"health": fmt.Sprintf("http://%s/health", s.addr),
		"status": fmt.Sprintf("http://%s/status", s.addr),
	})

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logger.InfoC("gateway", "Stopping status server")
	return s.httpServer.Shutdown(ctx)
}
