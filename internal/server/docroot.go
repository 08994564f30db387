package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/pagelet/internal/validation"
)

// rootedFs is the read-only view of a document root on the real filesystem.
// Every lookup resolves symlinks first and is refused when the real target
// lies outside the root, so a link inside the site cannot expose other files.
type rootedFs struct {
	afero.Fs
	root string
}

// NewDocroot opens root as a document root that never serves a file whose
// real path is outside root.
func NewDocroot(root string) (afero.Fs, error) {
	resolved, err := validation.RealRoot(root)
	if err != nil {
		return nil, err
	}
	return &rootedFs{
		Fs:   afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), resolved)),
		root: resolved,
	}, nil
}

func (r *rootedFs) check(name string) error {
	return validation.ConfineToRoot(r.root, strings.TrimPrefix(filepath.ToSlash(name), "/"))
}

func (r *rootedFs) Open(name string) (afero.File, error) {
	if err := r.check(name); err != nil {
		return nil, err
	}
	return r.Fs.Open(name)
}

func (r *rootedFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := r.check(name); err != nil {
		return nil, err
	}
	return r.Fs.OpenFile(name, flag, perm)
}

func (r *rootedFs) Stat(name string) (os.FileInfo, error) {
	if err := r.check(name); err != nil {
		return nil, err
	}
	return r.Fs.Stat(name)
}

func (r *rootedFs) Name() string { return "rootedFs" }

// LstatIfPossible does not follow the final link, so walking the root lists a
// link without reading through it.
func (r *rootedFs) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if l, ok := r.Fs.(afero.Lstater); ok {
		return l.LstatIfPossible(name)
	}
	fi, err := r.Stat(name)
	return fi, false, err
}
