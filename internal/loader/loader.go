// Package loader turns extracted server script text into a runnable entry by
// writing it to a uniquely named temp unit, loading that unit and removing it.
package loader

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/script"
)

// Compiler turns script source into a runnable entry. *script.Runtime
// implements it.
type Compiler interface {
	Compile(name, source string) (*script.Entry, error)
}

// Loader loads server scripts through temp units.
type Loader struct {
	fs       afero.Fs
	dir      string
	newName  func() string
	compiler Compiler
	logger   logging.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs sets the filesystem temp units are written to.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) { l.fs = fs }
}

// WithDir sets the directory temp units are written to.
func WithDir(dir string) Option {
	return func(l *Loader) { l.dir = dir }
}

// WithNameFunc sets the generator for temp unit base names.
func WithNameFunc(fn func() string) Option {
	return func(l *Loader) { l.newName = fn }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a Loader. Without options it writes to the OS temp dir on the
// real filesystem and names units with random UUIDs.
func New(compiler Compiler, opts ...Option) *Loader {
	l := &Loader{
		fs:       afero.NewOsFs(),
		dir:      os.TempDir(),
		newName:  uuid.NewString,
		compiler: compiler,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("loader")
	return l
}

// Load writes source to a fresh temp unit, loads it and removes it again.
// origin names the page the script came from and is only used for logging.
//
// The unit is removed whatever the load outcome. A failed removal after a
// successful load discards the loaded entry. Returned errors are left to the
// caller to report; the loader only logs a removal failure that the returned
// import error hides.
func (l *Loader) Load(ctx context.Context, origin, source string) (entry *script.Entry, err error) {
	unit := filepath.Join(l.dir, l.newName()+".js")
	op := logging.StartOperation(l.logger, "load", "origin", origin, "unit", unit)

	if err := afero.WriteFile(l.fs, unit, []byte(source), 0o600); err != nil {
		werr := pgerrors.ErrTempWrite(err).WithContext("unit", unit)
		op.End(ctx, "error", werr.Error())
		return nil, werr
	}

	defer func() {
		rmErr := l.fs.Remove(unit)
		if rmErr == nil {
			return
		}
		cerr := pgerrors.ErrTempRemove(rmErr).WithContext("unit", unit)
		if err != nil {
			l.logger.Warn(ctx, cerr, "Temp script left behind", "origin", origin, "unit", unit)
			return
		}
		entry, err = nil, cerr
	}()

	entry, err = l.load(unit)
	if err != nil {
		op.End(ctx, "error", err.Error())
		return nil, err
	}

	op.End(ctx)
	return entry, nil
}

func (l *Loader) load(unit string) (*script.Entry, error) {
	code, err := afero.ReadFile(l.fs, unit)
	if err != nil {
		return nil, pgerrors.ErrImport(err).WithLocation(unit, 0, 0)
	}
	entry, err := l.compiler.Compile(unit, string(code))
	if err != nil {
		return nil, pgerrors.ErrImport(err).WithLocation(unit, 0, 0)
	}
	return entry, nil
}
