package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsMaxAge = 86400

var (
	corsMethods = strings.Join([]string{http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{"Origin", "Content-Type", "Accept"}, ", ")
)

// WithAllowedOrigins restricts which browser origins may call the chat
// endpoint. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) error {
		for _, o := range origins {
			if err := validateOrigin(o); err != nil {
				return fmt.Errorf("invalid origin %q: %w", o, err)
			}
		}
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
		return nil
	}
}

// validateOrigin accepts "*" or scheme://host[:port].
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	scheme, rest, ok := strings.Cut(origin, "://")
	if !ok || scheme == "" {
		return errors.New("origin must include a scheme")
	}
	if rest == "" || strings.ContainsAny(rest, "/?#") {
		return errors.New("origin must be scheme://host[:port]")
	}
	return nil
}

// cors adds the Access-Control-* headers for allowed origins and answers
// preflight requests with 204.
func (s *Server) cors() gin.HandlerFunc {
	maxAge := strconv.Itoa(corsMaxAge)
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := ""
		for _, o := range s.allowedOrigins {
			if o == "*" || o == origin {
				allowed = o
				break
			}
		}
		if allowed == "" {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
