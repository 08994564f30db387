// Package validation checks request paths, redirect targets and configured
// paths before they reach the filesystem or a response.
package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
)

// ResolveSourcePath maps a request URI to a page path relative to the
// document root. The query is dropped, the path is percent-decoded and
// index is appended when the path ends in a slash. The result never starts
// with a slash and never leaves the root.
func ResolveSourcePath(requestURI, index string) (string, error) {
	p := requestURI
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", pgerrors.ErrInvalidPath(requestURI)
	}
	if strings.ContainsRune(decoded, 0) || strings.ContainsRune(decoded, '\\') {
		return "", pgerrors.ErrInvalidPath(requestURI)
	}

	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." {
			return "", pgerrors.ErrPathTraversal(requestURI)
		}
	}

	if decoded == "" || strings.HasSuffix(decoded, "/") {
		decoded += index
	}

	clean := strings.TrimPrefix(path.Clean("/"+decoded), "/")
	if clean == "" || clean == "." {
		return "", pgerrors.ErrInvalidPath(requestURI)
	}

	return clean, nil
}

// ConfineToRoot follows every symlink in rel, a slash separated path below
// root, and fails with a path traversal error when the real target lies
// outside root. root must already be free of symlinks (see RealRoot). A
// missing target is not an error here; the read that follows reports it.
func ConfineToRoot(root, rel string) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return pgerrors.NewIOError(pgerrors.ErrCodeReadSource, "failed to resolve page source", err).
			WithLocation(rel, 0, 0)
	}
	if !within(root, resolved) {
		return pgerrors.ErrPathTraversal(rel)
	}
	return nil
}

// RealRoot returns the absolute, symlink free form of root. A root that does
// not exist yet is only made absolute.
func RealRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}
	return resolved, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateIndexName checks that the configured index document is a plain
// file name with an allowed extension.
func ValidateIndexName(name string, allowedExtensions []string) error {
	if name == "" {
		return fmt.Errorf("index name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\\x00") || name == "." || name == ".." {
		return fmt.Errorf("index name must be a plain file name: %q", name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fmt.Errorf("index name must have an extension")
	}

	for _, allowed := range allowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}

	return fmt.Errorf("index extension '%s' is not allowed", ext)
}

// ValidateDir checks a configured directory path.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(dir, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(dir, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
