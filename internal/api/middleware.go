package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request ID, keeping one supplied by the caller.
// The ID is set on both the request and the response so the access log can read it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Request.Header.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Set("requestID", id)
		c.Next()
	}
}

// AccessLog writes one line per request in the component's log format.
func AccessLog(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    out,
		SkipPaths: []string{"/health", "/metrics"},
		Formatter: func(p gin.LogFormatterParams) string {
			return fmt.Sprintf("[api] %s %s %s %d %s %s req=%s\n",
				p.TimeStamp.Format(time.RFC3339),
				p.Method,
				p.Path,
				p.StatusCode,
				p.Latency.Round(time.Microsecond),
				p.ClientIP,
				p.Request.Header.Get(RequestIDHeader),
			)
		},
	})
}

type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// An empty list or "*" allows any origin.
func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{allowAll: len(allowed) == 0, allowed: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		if o == "*" {
			p.allowAll = true
		}
		p.allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return p
}

func (p originPolicy) permits(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// CheckOrigin returns a WebSocket handshake origin check for the allowed origins.
// Requests without an Origin header are accepted.
func CheckOrigin(allowed []string) func(r *http.Request) bool {
	p := newOriginPolicy(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || p.permits(origin)
	}
}

// CORS allows cross-origin reads from the listed origins.
// An empty list or "*" allows any origin.
func CORS(allowed []string) gin.HandlerFunc {
	p := newOriginPolicy(allowed)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if p.allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if p.permits(origin) {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
			c.Header("Access-Control-Expose-Headers", RequestIDHeader)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LimitBody caps the request body size.
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
