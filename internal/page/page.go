// Package page compiles page sources into entries that pair a server script
// with a render function.
package page

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/markup"
	"github.com/conneroisu/pagelet/internal/renderer"
	"github.com/conneroisu/pagelet/internal/script"
)

// Runner runs a server script against a request.
type Runner interface {
	Run(ctx context.Context, req *http.Request) (script.Result, error)
}

// Loader turns script source into a Runner-compatible entry.
type Loader interface {
	Load(ctx context.Context, origin, source string) (*script.Entry, error)
}

// staticScript is the script of a page without a server script.
type staticScript struct{}

func (staticScript) Run(context.Context, *http.Request) (script.Result, error) {
	return script.Rendered{Data: script.EmptyData()}, nil
}

// Entry is a compiled page. It is immutable and safe for concurrent use.
type Entry struct {
	Source     string
	Checksum   uint64
	Static     bool
	CompiledAt time.Time

	render renderer.RenderFunc
	script Runner
}

// NewEntry assembles an Entry from already compiled parts.
func NewEntry(source string, checksum uint64, render renderer.RenderFunc, runner Runner) *Entry {
	e := &Entry{
		Source:     source,
		Checksum:   checksum,
		CompiledAt: time.Now(),
		render:     render,
		script:     runner,
	}
	if runner == nil {
		e.Static = true
		e.script = staticScript{}
	}
	return e
}

// Run runs the page's server script.
func (e *Entry) Run(ctx context.Context, req *http.Request) (script.Result, error) {
	return e.script.Run(ctx, req)
}

// Render renders the page body with data.
func (e *Entry) Render(data any) (string, error) {
	out, err := e.render(data)
	if err != nil {
		return "", pgerrors.NewExecError(pgerrors.ErrCodeRender, pgerrors.MsgRender, err).
			WithLocation(e.Source, 0, 0)
	}
	return out, nil
}

// Checksum returns the content checksum used to identify page sources.
func Checksum(src []byte) uint64 {
	return xxhash.Sum64(src)
}

// Compiler builds Entries from page sources.
type Compiler struct {
	loader       Loader
	logger       logging.Logger
	maxTokenSize int
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithMaxTokenSize rejects pages holding a single markup token larger than n
// bytes. Zero means unlimited.
func WithMaxTokenSize(n int) CompilerOption {
	return func(c *Compiler) { c.maxTokenSize = n }
}

// NewCompiler creates a Compiler that loads server scripts through loader.
func NewCompiler(loader Loader, logger logging.Logger, opts ...CompilerOption) *Compiler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Compiler{loader: loader, logger: logger.WithComponent("page")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile parses src, strips every server script and compiles the rest as a
// template. Only the first server script contributes code. A page without
// server scripts renders its markup unchanged.
func (c *Compiler) Compile(ctx context.Context, sourcePath string, src []byte) (*Entry, error) {
	checksum := Checksum(src)

	decoded, err := markup.DecodeSource(src)
	if err != nil {
		return nil, pgerrors.NewParseError(pgerrors.ErrCodeMarkup, "invalid encoding", err).
			WithLocation(sourcePath, 0, 0)
	}

	doc, err := markup.Parse(decoded, markup.WithMaxBuffer(c.maxTokenSize))
	if err != nil {
		perr := pgerrors.NewParseError(pgerrors.ErrCodeMarkup, "malformed markup", err)
		var syntaxErr *markup.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, perr.WithLocation(sourcePath, syntaxErr.Line, 0)
		}
		return nil, perr.WithLocation(sourcePath, 0, 0)
	}

	ex := markup.Extract(doc)
	if ex.Static() {
		c.logger.Debug(ctx, "Compiled static page", "path", sourcePath)
		return NewEntry(sourcePath, checksum, renderer.Static(doc.String()), nil), nil
	}
	if ex.Count > 1 {
		c.logger.Warn(ctx, nil, "Page has more than one server script, only the first is used",
			"path", sourcePath, "count", ex.Count)
	}

	render, err := renderer.Compile(doc.String())
	if err != nil {
		var pe *pgerrors.PageError
		if errors.As(err, &pe) {
			pe.WithLocation(sourcePath, 0, 0)
		}
		return nil, err
	}

	entry, err := c.loader.Load(ctx, sourcePath, ex.Script)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "Compiled page", "path", sourcePath, "script_line", ex.ScriptLine)
	return NewEntry(sourcePath, checksum, render, entry), nil
}
