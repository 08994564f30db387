package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/loader"
	"github.com/conneroisu/pagelet/internal/script"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, origin, source string) (*script.Entry, error) {
	args := m.Called(origin, source)
	entry, _ := args.Get(0).(*script.Entry)
	return entry, args.Error(1)
}

func newCompiler() *Compiler {
	l := loader.New(script.NewRuntime(script.Options{}),
		loader.WithFs(afero.NewMemMapFs()), loader.WithDir("/tmp"))
	return NewCompiler(l, nil)
}

func renderPage(t *testing.T, entry *Entry, target string) string {
	t.Helper()
	res, err := entry.Run(context.Background(), httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	rendered, ok := res.(script.Rendered)
	require.True(t, ok, "expected Rendered, got %T", res)
	out, err := entry.Render(rendered.Data)
	require.NoError(t, err)
	return out
}

func TestCompileScenarioA(t *testing.T) {
	src := []byte(`<script use="server">export default () => ({name:"Ada"})</script><h1>{{name}}</h1>`)

	entry, err := newCompiler().Compile(context.Background(), "index.html", src)
	require.NoError(t, err)

	assert.False(t, entry.Static)
	assert.Equal(t, "index.html", entry.Source)
	assert.Equal(t, Checksum(src), entry.Checksum)
	assert.Equal(t, "<h1>Ada</h1>", renderPage(t, entry, "/"))
}

func TestCompileStatic(t *testing.T) {
	ml := &mockLoader{}
	src := "<!DOCTYPE html>\n<p>Hello {{name}}</p><script>var x = 1;</script>"

	entry, err := NewCompiler(ml, nil).Compile(context.Background(), "about.html", []byte(src))
	require.NoError(t, err)

	assert.True(t, entry.Static)
	res, err := entry.Run(context.Background(), httptest.NewRequest(http.MethodGet, "/about.html", nil))
	require.NoError(t, err)
	assert.Equal(t, script.Rendered{Data: script.EmptyData()}, res)
	assert.Equal(t, src, renderPage(t, entry, "/about.html"))

	ml.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestCompileFirstScriptWins(t *testing.T) {
	src := `<script use="server">export default () => ({who: "first"})</script>
<p>{{who}}</p>
<script use="server">export default () => ({who: "second"})</script>`

	entry, err := newCompiler().Compile(context.Background(), "index.html", []byte(src))
	require.NoError(t, err)

	out := renderPage(t, entry, "/")
	assert.Contains(t, out, "<p>first</p>")
	assert.NotContains(t, out, "export default")
	assert.NotContains(t, out, "second")
}

func TestCompileRequestData(t *testing.T) {
	src := `<script use="server">export default (req) => ({q: req.query.q || "none"})</script><p>{{q}}</p>`

	entry, err := newCompiler().Compile(context.Background(), "search.html", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "<p>go</p>", renderPage(t, entry, "/search.html?q=go"))
	assert.Equal(t, "<p>none</p>", renderPage(t, entry, "/search.html"))
}

func TestCompileStripsBOM(t *testing.T) {
	entry, err := NewCompiler(&mockLoader{}, nil).Compile(context.Background(), "bom.html", []byte("\xEF\xBB\xBF<p>x</p>"))
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", renderPage(t, entry, "/bom.html"))
}

func TestCompileMarkupError(t *testing.T) {
	ml := &mockLoader{}
	_, err := NewCompiler(ml, nil).Compile(context.Background(), "broken.html",
		[]byte("<p>ok</p>\n<script use=\"server\">export default () => ({})"))
	require.Error(t, err)

	assert.True(t, pgerrors.IsType(err, pgerrors.ErrorTypeParse))
	assert.Equal(t, "line 2: unterminated <script> element", pgerrors.PublicMessage(err))

	var pe *pgerrors.PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "broken.html", pe.FilePath)
	assert.Equal(t, 2, pe.Line)
	ml.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestCompileMaxTokenSize(t *testing.T) {
	src := []byte("<p>" + strings.Repeat("x", 256) + "</p>")

	ml := &mockLoader{}
	_, err := NewCompiler(ml, nil, WithMaxTokenSize(64)).Compile(context.Background(), "big.html", src)
	require.Error(t, err)
	assert.True(t, pgerrors.IsType(err, pgerrors.ErrorTypeParse))
	assert.Contains(t, pgerrors.PublicMessage(err), "max buffer exceeded")
	ml.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)

	entry, err := NewCompiler(ml, nil, WithMaxTokenSize(1024)).Compile(context.Background(), "big.html", src)
	require.NoError(t, err)
	assert.Equal(t, string(src), renderPage(t, entry, "/big.html"))

	entry, err = NewCompiler(ml, nil).Compile(context.Background(), "big.html", src)
	require.NoError(t, err, "zero means unlimited")
	assert.Equal(t, string(src), renderPage(t, entry, "/big.html"))
}

func TestCompileTemplateErrorSkipsLoad(t *testing.T) {
	ml := &mockLoader{}
	_, err := NewCompiler(ml, nil).Compile(context.Background(), "tpl.html",
		[]byte(`<script use="server">export default () => ({})</script>{{#each items}}`))
	require.Error(t, err)

	assert.True(t, pgerrors.IsType(err, pgerrors.ErrorTypeParse))
	ml.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestCompileLoaderError(t *testing.T) {
	ml := &mockLoader{}
	ml.On("Load", "index.html", "export default () => ({})").Return(nil, pgerrors.ErrTempWrite(errors.New("disk full")))

	_, err := NewCompiler(ml, nil).Compile(context.Background(), "index.html",
		[]byte(`<script use="server">export default () => ({})</script><p></p>`))
	require.Error(t, err)
	assert.Equal(t, pgerrors.MsgTempWrite, pgerrors.PublicMessage(err))
	ml.AssertExpectations(t)
}

func TestEntryRenderError(t *testing.T) {
	entry := NewEntry("x.html", 0, func(any) (string, error) {
		return "", errors.New("boom")
	}, nil)

	_, err := entry.Render(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pgerrors.PageError{Type: pgerrors.ErrorTypeExec, Code: pgerrors.ErrCodeRender}))
	assert.True(t, strings.Contains(err.Error(), "boom"))
}
