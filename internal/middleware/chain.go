// Package middleware composes the HTTP middleware stack wrapped around the
// page handler.
package middleware

import (
	"compress/gzip"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/klauspost/compress/gzhttp"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
)

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// MiddlewareChain holds an ordered list of middlewares.
//
// The first added middleware is the outermost wrapper: with [A, B, C] and
// handler H the request flows A -> B -> C -> H.
type MiddlewareChain struct {
	middlewares []Middleware
}

// Dependencies configures the default stack.
type Dependencies struct {
	Logger      logging.Logger
	Compression CompressionConfig
}

// CompressionConfig controls response compression.
type CompressionConfig struct {
	Enabled bool
	// Level is one of "fastest", "default", "best" or "none".
	Level   string
	MinSize int
}

// NewMiddlewareChain builds the default stack: request logging, panic
// recovery, security headers and compression.
func NewMiddlewareChain(deps Dependencies) (*MiddlewareChain, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("http")

	chain := &MiddlewareChain{middlewares: make([]Middleware, 0, 4)}
	chain.Add(Logging(logger))
	chain.Add(Recovery(logger))
	chain.Add(SecurityHeaders())

	compress, err := Compression(deps.Compression)
	if err != nil {
		return nil, err
	}
	if compress != nil {
		chain.Add(compress)
	}

	return chain, nil
}

// Add appends middleware as the innermost wrapper so far.
func (mc *MiddlewareChain) Add(middleware Middleware) {
	mc.middlewares = append(mc.middlewares, middleware)
}

// Len returns the number of middlewares in the chain.
func (mc *MiddlewareChain) Len() int {
	return len(mc.middlewares)
}

// Apply wraps handler with every middleware in the chain.
func (mc *MiddlewareChain) Apply(handler http.Handler) http.Handler {
	if handler == nil {
		panic("MiddlewareChain.Apply: handler cannot be nil")
	}

	wrapped := handler
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		wrapped = mc.middlewares[i](wrapped)
	}
	return wrapped
}

// Logging logs one line per request with its status and duration.
func Logging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.Written(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rec.Status() >= http.StatusInternalServerError {
				logger.Warn(r.Context(), nil, "Request failed", fields...)
				return
			}
			logger.Info(r.Context(), "Request handled", fields...)
		})
	}
}

// Recovery turns a panic in a handler into a 500 response.
func Recovery(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := pgerrors.NewInternalError(pgerrors.ErrCodeInternalError, "handler panic", fmt.Errorf("%v", v))
				logger.Error(r.Context(), err, "Recovered from panic",
					"path", r.URL.Path, "stack", string(debug.Stack()))
				if !rec.WroteHeader() {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// SecurityHeaders sets headers every response should carry.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// Compression returns a gzip middleware, or nil when compression is off.
func Compression(cfg CompressionConfig) (Middleware, error) {
	if !cfg.Enabled || cfg.Level == "none" {
		return nil, nil
	}

	var level int
	switch cfg.Level {
	case "fastest":
		level = gzip.BestSpeed
	case "best":
		level = gzip.BestCompression
	case "default", "":
		level = gzip.DefaultCompression
	default:
		return nil, fmt.Errorf("unknown compression level %q", cfg.Level)
	}

	minSize := cfg.MinSize
	if minSize <= 0 {
		minSize = gzhttp.DefaultMinSize
	}

	wrapper, err := gzhttp.NewWrapper(
		gzhttp.MinSize(minSize),
		gzhttp.CompressionLevel(level),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gzip wrapper: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return wrapper(next)
	}, nil
}
