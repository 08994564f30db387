// Package scanner discovers the pages under a document root.
//
// The scanner walks an afero filesystem for page sources, parses each one and
// reports the route it is served at, how many server scripts it carries and a
// content checksum. It is used by the list command and never touches the
// serving path.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/markup"
	"github.com/conneroisu/pagelet/internal/page"
)

// PageInfo describes one discovered page.
type PageInfo struct {
	Path          string `json:"path" yaml:"path"`
	Route         string `json:"route" yaml:"route"`
	ServerScripts int    `json:"server_scripts" yaml:"server_scripts"`
	Size          int64  `json:"size" yaml:"size"`
	Checksum      string `json:"checksum" yaml:"checksum"`
	// Err is set when the page could not be read or parsed.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Static reports whether the page is served without running a script.
func (p PageInfo) Static() bool {
	return p.ServerScripts == 0
}

// PageScanner walks a document root for pages.
type PageScanner struct {
	fs      afero.Fs
	index   string
	exts    []string
	workers int
	logger  logging.Logger
}

// Option configures a PageScanner.
type Option func(*PageScanner)

// WithExtensions sets the file extensions treated as pages.
func WithExtensions(exts ...string) Option {
	return func(s *PageScanner) { s.exts = exts }
}

// WithWorkers sets how many pages are parsed concurrently.
func WithWorkers(n int) Option {
	return func(s *PageScanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *PageScanner) { s.logger = logger }
}

// New creates a scanner over fs. index is the page served for directory
// requests.
func New(fs afero.Fs, index string, opts ...Option) *PageScanner {
	s := &PageScanner{
		fs:      fs,
		index:   index,
		exts:    []string{".html", ".htm"},
		workers: runtime.NumCPU(),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scanner")
	return s
}

// Scan walks the whole root and returns the pages sorted by path. A page
// that fails to parse is still reported with Err set; only walk failures
// and cancellation abort the scan.
func (s *PageScanner) Scan(ctx context.Context) ([]PageInfo, error) {
	var files []string
	err := afero.Walk(s.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if p != "." && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isPage(p) {
			files = append(files, filepath.ToSlash(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking document root: %w", err)
	}

	pages := make([]PageInfo, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.workers
	if workers > len(files) {
		workers = len(files)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				pages[idx] = s.scanFile(files[idx])
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })
	s.logger.Debug(ctx, "Scan complete", "pages", len(pages))
	return pages, nil
}

// ScanFile inspects a single page.
func (s *PageScanner) ScanFile(p string) PageInfo {
	return s.scanFile(filepath.ToSlash(p))
}

func (s *PageScanner) scanFile(p string) PageInfo {
	info := PageInfo{Path: p, Route: Route(p, s.index)}

	src, err := afero.ReadFile(s.fs, p)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	info.Size = int64(len(src))
	info.Checksum = fmt.Sprintf("%016x", page.Checksum(src))

	decoded, err := markup.DecodeSource(src)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	doc, err := markup.Parse(decoded)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	info.ServerScripts = len(doc.ServerScripts())
	return info
}

func (s *PageScanner) isPage(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range s.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Route returns the request path a page source is served at. Index pages
// are served at their directory.
func Route(sourcePath, index string) string {
	sourcePath = strings.TrimPrefix(filepath.ToSlash(sourcePath), "./")
	dir, file := path.Split(sourcePath)
	if file == index {
		return "/" + dir
	}
	return "/" + sourcePath
}

// Errors joins the errors of every page that failed to scan, keyed by path.
// It returns nil when all pages are fine.
func Errors(pages []PageInfo) error {
	collector := pgerrors.NewErrorCollector()
	for _, p := range pages {
		if p.Err != "" {
			collector.Add(p.Path, errors.New(p.Err))
		}
	}
	return collector.Err()
}
