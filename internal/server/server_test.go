package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagelet/internal/config"
	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/testutils"
)

const scenarioA = testutils.GreetingPage

// removeFailFs refuses to delete anything.
type removeFailFs struct {
	afero.Fs
}

func (removeFailFs) Remove(string) error {
	return errors.New("device busy")
}

// recordingFs remembers every file that was created.
type recordingFs struct {
	afero.Fs
	mu      sync.Mutex
	created []string
}

func (r *recordingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		r.mu.Lock()
		r.created = append(r.created, name)
		r.mu.Unlock()
	}
	return r.Fs.OpenFile(name, flag, perm)
}

func (r *recordingFs) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

func testConfig() *config.Config {
	return testutils.CreateTestConfig("/site", "/tmp")
}

type fixture struct {
	server *Server
	tempFs afero.Fs
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, pages map[string]string, opts ...func(*config.Config, *Dependencies)) *fixture {
	t.Helper()

	docroot := testutils.MemSite(t, pages)

	logs := &bytes.Buffer{}
	cfg := testConfig()
	deps := Dependencies{
		Docroot: docroot,
		TempFs:  afero.NewMemMapFs(),
		Logger:  logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "json", Output: logs}),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	s, err := New(cfg, deps)
	require.NoError(t, err)
	return &fixture{server: s, tempFs: deps.TempFs, logs: logs}
}

// errorLines counts the error level records written so far.
func (f *fixture) errorLines() int {
	return strings.Count(f.logs.String(), `"level":"ERROR"`)
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func withCache(enabled bool) func(*config.Config, *Dependencies) {
	return func(cfg *config.Config, _ *Dependencies) { cfg.Cache.Enabled = enabled }
}

func withTempFs(fs afero.Fs) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, deps *Dependencies) { deps.TempFs = fs }
}

func TestScenarioA(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA})

	rec := f.get("/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeHTML, rec.Header().Get("Content-Type"))
	assert.Equal(t, "<h1>Ada</h1>", rec.Body.String())
}

func TestScenarioBStaticPage(t *testing.T) {
	static := "<!DOCTYPE html>\n<html><body><p>{{left alone}}</p><script>let a = 1;</script></body></html>"
	f := newFixture(t, map[string]string{"about.html": static})

	rec := f.get("/about.html?ref=nav")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, static, rec.Body.String())
}

func TestScenarioCRedirect(t *testing.T) {
	f := newFixture(t, map[string]string{"account/index.html": testutils.LoginRedirectPage})

	rec := f.get("/account/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/account/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "1"})
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>secret ada</p>", rec.Body.String())
}

func TestRedirectStatus(t *testing.T) {
	f := newFixture(t, map[string]string{
		"old.html":  `<script use="server">export default () => redirect("/new.html", 301)</script>`,
		"evil.html": `<script use="server">export default () => redirect("javascript:alert(1)")</script>`,
	})

	rec := f.get("/old.html")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/new.html", rec.Header().Get("Location"))

	rec = f.get("/evil.html")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestScenarioDMissingSource(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA})

	rec := f.get("/missing.html")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, 0, f.server.Hook().Cache().Len())
}

func TestScenarioETempWriteFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA},
		withTempFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))

	rec := f.get("/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to write temp script\n", rec.Body.String())
	assert.Equal(t, 0, f.server.Hook().Cache().Len())
}

func TestTempRemoveFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA},
		withTempFs(removeFailFs{Fs: afero.NewMemMapFs()}))

	rec := f.get("/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to remove temp script\n", rec.Body.String())
	assert.Equal(t, 0, f.server.Hook().Cache().Len())
	assert.Contains(t, f.logs.String(), "Temp script could not be removed")
	assert.Equal(t, 1, f.errorLines(), "cleanup failure logged more than once")
}

func TestImportFailure(t *testing.T) {
	f := newFixture(t, map[string]string{
		"index.html": `<script use="server">export const notDefault = 1</script><p></p>`,
	})

	rec := f.get("/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to import temp script\n", rec.Body.String())
	assert.Contains(t, f.logs.String(), "Server script failed to import")
	assert.Equal(t, 1, f.errorLines(), "import failure logged more than once")

	units, err := afero.Glob(f.tempFs, "/tmp/*.js")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestParseFailure(t *testing.T) {
	f := newFixture(t, map[string]string{
		"index.html": "<h1>hi</h1>\n<script use=\"server\">export default () => ({})",
	})

	rec := f.get("/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "line 2: unterminated <script> element\n", rec.Body.String())
}

func TestMaxTokenSize(t *testing.T) {
	big := "<p>" + strings.Repeat("x", 128) + "</p>"
	f := newFixture(t, map[string]string{"big.html": big, "index.html": scenarioA},
		func(cfg *config.Config, _ *Dependencies) { cfg.Site.MaxTokenSize = 64 })

	rec := f.get("/big.html")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "line 1: max buffer exceeded\n", rec.Body.String())

	rec = f.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>Ada</h1>", rec.Body.String())
}

func TestScriptFailure(t *testing.T) {
	f := newFixture(t, map[string]string{
		"index.html": `<script use="server">export default () => { throw new Error("db down") }</script><p></p>`,
	})

	rec := f.get("/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to run server script\n", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "db down")
	assert.Contains(t, f.logs.String(), "db down")
}

func TestPathTraversal(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA})

	for _, target := range []string{"/%2e%2e/etc/passwd", "/a/..%2f..%2fsecret.html"} {
		rec := f.get(target)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.Equal(t, "Forbidden\n", rec.Body.String(), target)
	}

	rec := f.get("/index.html%00")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSymlinkEscape(t *testing.T) {
	outside := testutils.CreateTempSite(t, map[string]string{"secret.html": "<p>secret</p>"})
	root := testutils.CreateTempSite(t, map[string]string{"index.html": scenarioA})

	links := map[string]string{
		"leak.html":  filepath.Join(outside, "secret.html"),
		"ext":        outside,
		"alias.html": filepath.Join(root, "index.html"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}

	cfg := testutils.CreateTestConfig(root, t.TempDir())
	s, err := New(cfg, Dependencies{TempFs: afero.NewMemMapFs()})
	require.NoError(t, err)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	for _, target := range []string{"/leak.html", "/ext/secret.html"} {
		rec := get(target)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.Equal(t, "Forbidden\n", rec.Body.String(), target)
	}

	for _, target := range []string{"/", "/alias.html"} {
		rec := get(target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "<h1>Ada</h1>", rec.Body.String(), target)
	}

	assert.Equal(t, http.StatusInternalServerError, get("/missing.html").Code)
}

func TestCacheHitMatchesMiss(t *testing.T) {
	f := newFixture(t, map[string]string{
		"greet.html": `<script use="server">export default (req) => ({who: req.query.who || "world"})</script><p>Hello {{who}}</p>`,
	})

	miss := f.get("/greet.html?who=Ada")
	hit := f.get("/greet.html?who=Ada")

	assert.Equal(t, http.StatusOK, miss.Code)
	assert.Equal(t, miss.Body.String(), hit.Body.String())
	assert.Equal(t, "<p>Hello Ada</p>", hit.Body.String())

	stats := f.server.Hook().Cache().Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Sets)
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
}

func TestCacheEnabledLoadsOnce(t *testing.T) {
	temp := &recordingFs{Fs: afero.NewMemMapFs()}
	f := newFixture(t, map[string]string{"index.html": scenarioA}, withTempFs(temp))

	for i := 0; i < 3; i++ {
		assert.Equal(t, "<h1>Ada</h1>", f.get("/").Body.String())
	}
	assert.Len(t, temp.names(), 1)
}

func TestCacheDisabledLoadsEveryRequest(t *testing.T) {
	temp := &recordingFs{Fs: afero.NewMemMapFs()}
	f := newFixture(t, map[string]string{"index.html": scenarioA}, withCache(false), withTempFs(temp))

	first := f.get("/")
	second := f.get("/")

	assert.Equal(t, first.Body.String(), second.Body.String())
	names := temp.names()
	require.Len(t, names, 2)
	assert.NotEqual(t, names[0], names[1])
	assert.Equal(t, 0, f.server.Hook().Cache().Len())
}

func TestConcurrentMissesCompileOnce(t *testing.T) {
	temp := &recordingFs{Fs: afero.NewMemMapFs()}
	f := newFixture(t, map[string]string{"index.html": scenarioA}, withTempFs(temp))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := f.get("/")
			assert.Equal(t, "<h1>Ada</h1>", rec.Body.String())
		}()
	}
	wg.Wait()

	assert.Len(t, temp.names(), 1)
}

func TestCompression(t *testing.T) {
	body := "<ul>" + strings.Repeat("<li>{{item}}</li>", 200) + "</ul>"
	f := newFixture(t, map[string]string{
		"list.html": `<script use="server">export default () => ({item: "pagelet"})</script>` + body,
	}, func(cfg *config.Config, _ *Dependencies) {
		cfg.Server.Compress = true
		cfg.Server.CompressMinSize = 256
	})

	req := httptest.NewRequest(http.MethodGet, "/list.html", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, 200, strings.Count(string(plain), "<li>pagelet</li>"))
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA})
	f.get("/")

	rec := f.get(AdminPrefix + "health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	rec = f.get(AdminPrefix + "cache")
	require.Equal(t, http.StatusOK, rec.Code)
	var cache struct {
		Enabled bool     `json:"enabled"`
		Keys    []string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cache))
	assert.True(t, cache.Enabled)
	assert.Equal(t, []string{"index.html"}, cache.Keys)

	req := httptest.NewRequest(http.MethodPost, AdminPrefix+"cache", nil)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t, map[string]string{"index.html": scenarioA})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()

	select {
	case <-f.server.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + f.server.Addr() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "<h1>Ada</h1>", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.NoError(t, f.server.Shutdown(context.Background()))
}
