// Package server serves pages from the document root over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/pagelet/internal/config"
	"github.com/conneroisu/pagelet/internal/loader"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/middleware"
	"github.com/conneroisu/pagelet/internal/page"
	"github.com/conneroisu/pagelet/internal/pagecache"
	"github.com/conneroisu/pagelet/internal/script"
)

// AdminPrefix is the path prefix of the built-in endpoints. Requests under
// it never reach the page hook.
const AdminPrefix = "/_pagelet/"

// Server owns the HTTP server lifecycle around a Hook.
type Server struct {
	config  *config.Config
	logger  logging.Logger
	hook    *Hook
	handler http.Handler

	httpServer   *http.Server
	addr         string
	serverMutex  sync.RWMutex // Protects httpServer and addr
	ready        chan struct{}
	shutdownOnce sync.Once
}

// Dependencies lets callers replace the filesystems the server uses.
// Zero values use the real filesystem.
type Dependencies struct {
	Docroot afero.Fs
	TempFs  afero.Fs
	Logger  logging.Logger
}

// New wires the script runtime, loader, page compiler, cache, hook and
// middleware stack from cfg.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	docroot := deps.Docroot
	if docroot == nil {
		var err error
		docroot, err = NewDocroot(cfg.Site.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve document root: %w", err)
		}
	}
	tempFs := deps.TempFs
	if tempFs == nil {
		tempFs = afero.NewOsFs()
	}

	runtime := script.NewRuntime(script.Options{
		Timeout:  cfg.Script.Timeout,
		PoolSize: cfg.Script.PoolSize,
		Logger:   logger,
	})
	l := loader.New(runtime,
		loader.WithFs(tempFs),
		loader.WithDir(cfg.Script.TempDir),
		loader.WithLogger(logger),
	)

	hook := NewHook(HookConfig{
		Docroot:      docroot,
		Index:        cfg.Site.Index,
		Compiler:     page.NewCompiler(l, logger, page.WithMaxTokenSize(cfg.Site.MaxTokenSize)),
		Cache:        pagecache.New(),
		CacheEnabled: cfg.Cache.Enabled,
		Logger:       logger,
	})

	chain, err := middleware.NewMiddlewareChain(middleware.Dependencies{
		Logger: logger,
		Compression: middleware.CompressionConfig{
			Enabled: cfg.Server.Compress,
			Level:   cfg.Server.CompressLevel,
			MinSize: cfg.Server.CompressMinSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build middleware chain: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: logger.WithComponent("server"),
		hook:   hook,
		ready:  make(chan struct{}),
	}
	s.handler = chain.Apply(s.routes())

	return s, nil
}

func (s *Server) routes() http.Handler {
	admin := http.NewServeMux()
	admin.HandleFunc(AdminPrefix+"health", s.handleHealth)
	admin.HandleFunc(AdminPrefix+"cache", s.handleCache)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, AdminPrefix) {
			admin.ServeHTTP(w, r)
			return
		}
		s.hook.ServeHTTP(w, r)
	})
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hook returns the page hook.
func (s *Server) Hook() *Hook {
	return s.hook
}

// Addr returns the address the server listens on once Ready is closed.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start listens on the configured address and serves until ctx is done or
// the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
	}
	s.addr = ln.Addr().String()
	server := s.httpServer // Get local copy for safe access
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	s.logger.Info(ctx, "Serving pages",
		"addr", s.addr,
		"root", s.config.Site.Root,
		"cache", s.config.Cache.Enabled,
	)
	close(s.ready)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the server. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
