// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagelet/internal/config"
)

// Common page sources.
const (
	// GreetingPage renders <h1>Ada</h1>.
	GreetingPage = `<script use="server">export default () => ({name:"Ada"})</script><h1>{{name}}</h1>`
	// StaticPage has no server script.
	StaticPage = "<!DOCTYPE html>\n<p>static {{untouched}}</p>"
	// LoginRedirectPage redirects to /login unless a session cookie is sent.
	LoginRedirectPage = `<script use="server">
import { Redirect } from "pagelet";
export default (req) => req.cookies.session ? {user: "ada"} : new Redirect("/login");
</script><p>secret {{user}}</p>`
)

// CreateTempSite writes files below a fresh temporary directory and returns
// its path. Keys are slash-separated paths relative to the root.
func CreateTempSite(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	return dir
}

// MemSite returns an in-memory document root holding files.
func MemSite(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	return fs
}

// CreateTestConfig returns a valid configuration serving root on a random
// loopback port, with temp units written to tempDir.
func CreateTestConfig(root, tempDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			CompressLevel:   config.DefaultCompressLevel,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Site:   config.SiteConfig{Root: root, Index: config.DefaultIndex},
		Cache:  config.CacheConfig{Enabled: true},
		Script: config.ScriptConfig{TempDir: tempDir, PoolSize: 2},
		Log:    config.LogConfig{Level: "debug", Format: "json"},
	}
}

// AssertFilePermissions checks the permission bits of path.
func AssertFilePermissions(t *testing.T, fs afero.Fs, path string, expectedMode os.FileMode) {
	t.Helper()

	info, err := fs.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0o777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0o777), expectedMode)
}
