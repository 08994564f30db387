package server

import (
	"context"
	"io"
	"net/http"

	"github.com/spf13/afero"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/page"
	"github.com/conneroisu/pagelet/internal/pagecache"
	"github.com/conneroisu/pagelet/internal/script"
	"github.com/conneroisu/pagelet/internal/validation"
)

// ContentTypeHTML is sent with every rendered page.
const ContentTypeHTML = "text/html; charset=utf-8"

// PageCompiler compiles a page source into an entry. *page.Compiler
// implements it.
type PageCompiler interface {
	Compile(ctx context.Context, sourcePath string, src []byte) (*page.Entry, error)
}

// HookConfig wires a Hook.
type HookConfig struct {
	// Docroot holds the pages. Paths handed to it are relative to its root.
	Docroot  afero.Fs
	Index    string
	Compiler PageCompiler
	// Cache is consulted and populated only when CacheEnabled is true.
	Cache        *pagecache.Cache
	CacheEnabled bool
	Logger       logging.Logger
}

// Hook serves pages: it resolves the request to a page source, compiles it
// or takes it from the cache, runs its server script and renders the result
// or redirects. Every request gets exactly one response.
type Hook struct {
	docroot      afero.Fs
	index        string
	compiler     PageCompiler
	cache        *pagecache.Cache
	cacheEnabled bool
	logger       logging.Logger
	errors       *pgerrors.ErrorHandler
}

// NewHook creates a Hook.
func NewHook(cfg HookConfig) *Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("hook")

	index := cfg.Index
	if index == "" {
		index = "index.html"
	}

	cache := cfg.Cache
	if cache == nil {
		cache = pagecache.New()
	}

	return &Hook{
		docroot:      cfg.Docroot,
		index:        index,
		compiler:     cfg.Compiler,
		cache:        cache,
		cacheEnabled: cfg.CacheEnabled,
		logger:       logger,
		errors:       pgerrors.NewErrorHandler(logger),
	}
}

// ServeHTTP implements http.Handler.
func (h *Hook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sourcePath, err := validation.ResolveSourcePath(r.URL.RequestURI(), h.index)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.entry(ctx, sourcePath)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := entry.Run(ctx, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	switch res := res.(type) {
	case script.Redirect:
		if err := validation.ValidateRedirectURL(res.URL); err != nil {
			h.fail(w, r, pgerrors.NewExecError(pgerrors.ErrCodeScriptFailed, pgerrors.MsgScript, err).
				WithLocation(sourcePath, 0, 0))
			return
		}
		http.Redirect(w, r, res.URL, script.NormalizeStatus(res.Status))

	case script.Rendered:
		body, err := entry.Render(res.Data)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", ContentTypeHTML)
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, body); err != nil {
			h.logger.Debug(ctx, "Client went away while writing page", "path", sourcePath, "error", err)
		}

	default:
		h.fail(w, r, pgerrors.NewInternalError(pgerrors.ErrCodeInternalError, "unknown script result", nil))
	}
}

// Cache returns the page cache the hook uses.
func (h *Hook) Cache() *pagecache.Cache {
	return h.cache
}

func (h *Hook) entry(ctx context.Context, sourcePath string) (*page.Entry, error) {
	compile := func() (*page.Entry, error) {
		src, err := afero.ReadFile(h.docroot, sourcePath)
		if err != nil {
			if pgerrors.IsType(err, pgerrors.ErrorTypeSecurity) || pgerrors.IsType(err, pgerrors.ErrorTypeIO) {
				return nil, err
			}
			return nil, pgerrors.NewIOError(pgerrors.ErrCodeReadSource, "failed to read page source", err).
				WithLocation(sourcePath, 0, 0)
		}
		return h.compiler.Compile(ctx, sourcePath, src)
	}

	if !h.cacheEnabled {
		return compile()
	}
	return h.cache.Do(sourcePath, compile)
}

func (h *Hook) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errors.Handle(r.Context(), err, "method", r.Method, "path", r.URL.Path)
	http.Error(w, pgerrors.PublicMessage(err), pgerrors.StatusOf(err))
}
