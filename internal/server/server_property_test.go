//go:build property
// +build property

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/afero"
)

func newPropertyServer(t *testing.T, docroot afero.Fs) *Server {
	cfg := testConfig()
	cfg.Cache.Enabled = false
	s, err := New(cfg, Dependencies{Docroot: docroot, TempFs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPageProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	docroot := afero.NewMemMapFs()
	s := newPropertyServer(t, docroot)

	properties.Property("static pages are served verbatim", prop.ForAll(
		func(text string) bool {
			body := "<p>" + text + "</p>"
			if err := afero.WriteFile(docroot, "static.html", []byte(body), 0o644); err != nil {
				return false
			}
			rec := serve(s, "/static.html")
			return rec.Code == http.StatusOK && rec.Body.String() == body
		},
		gen.AlphaString(),
	))

	properties.Property("server script text never reaches the client", prop.ForAll(
		func(value string) bool {
			marker := "secret" + value
			page := `<script use="server">const ` + marker + ` = 1; export default () => ({v: "` + value + `"})</script><i>{{v}}</i>`
			if err := afero.WriteFile(docroot, "dyn.html", []byte(page), 0o644); err != nil {
				return false
			}
			rec := serve(s, "/dyn.html")
			out := rec.Body.String()
			return rec.Code == http.StatusOK &&
				out == "<i>"+value+"</i>" &&
				!strings.Contains(out, marker)
		},
		gen.Identifier(),
	))

	properties.Property("dot-dot segments are forbidden", prop.ForAll(
		func(prefix, suffix string) bool {
			rec := serve(s, "/"+prefix+"/../"+suffix)
			return rec.Code == http.StatusForbidden
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
