package status

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type response struct {
	Ok   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Server exposes the tracker over HTTP.
type Server struct {
	http *http.Server
}

// NewServer builds the status HTTP server on the given port.
func NewServer(port int, tracker *Tracker) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := newRouter(tracker)

	s := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{http: s}
}

func newRouter(tracker *Tracker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, response{Ok: true})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, response{Ok: true, Data: tracker.Snapshot()})
	})

	return router
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
