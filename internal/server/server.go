package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// APIServer serves the staff API and the host event stream.
type APIServer struct {
	server *http.Server
	engine *gin.Engine
	port   int
}

// NewAPIServer builds the gin engine with all routes mounted.
func NewAPIServer(port int, handler *Handler, auth *Auth, hostToken string) *APIServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handler.Routes(engine, auth, hostToken)

	return &APIServer{
		engine: engine,
		port:   port,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: engine,
		},
	}
}

// Start begins serving in the background.
func (s *APIServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("api server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("api server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down api server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("api server stopped")
	return nil
}
