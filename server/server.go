// Package server exposes the engine over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/querysafe"
)

const (
	// DefaultMaxUploadBytes bounds the body of one upload request.
	DefaultMaxUploadBytes = 64 << 20
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultHistoryLimit caps the messages returned for one conversation.
	DefaultHistoryLimit = 100
)

// Server serves the chatbot API.
type Server struct {
	engine          *querysafe.Engine
	router          *gin.Engine
	maxUploadBytes  int64
	shutdownTimeout time.Duration
	allowedOrigins  []string
	logger          *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithMaxUploadBytes bounds the size of an upload request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("max upload bytes must be positive, got %d", n)
		}
		s.maxUploadBytes = n
		return nil
	}
}

// WithShutdownTimeout bounds how long Serve waits for requests to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.shutdownTimeout = d
		return nil
	}
}

// WithLogger sets the logger for request and error logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New creates a Server over engine.
func New(engine *querysafe.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Server{
		engine:          engine,
		maxUploadBytes:  DefaultMaxUploadBytes,
		shutdownTimeout: DefaultShutdownTimeout,
		allowedOrigins:  []string{"*"},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.MaxMultipartMemory = s.maxUploadBytes
	s.router.Use(s.recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)

	v1 := s.router.Group("/v1")
	v1.POST("/chat", s.cors(), s.chat)
	v1.OPTIONS("/chat", s.cors())
	v1.GET("/chatbots", s.listChatbots)

	bot := v1.Group("/chatbots/:tenant")
	bot.DELETE("", s.deleteChatbot)
	bot.GET("/status", s.status)
	bot.GET("/documents", s.listDocuments)
	bot.POST("/documents", s.uploadDocuments)
	bot.DELETE("/documents/:id", s.deleteDocument)
	bot.GET("/conversations", s.listConversations)
	bot.GET("/conversations/:id", s.conversationHistory)
	bot.DELETE("/conversations/:id", s.deleteConversation)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("listening", "addr", l.Addr().String())

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", attrs...)
			return
		}
		s.logger.Info("request", attrs...)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic serving request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	})
}
