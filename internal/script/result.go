package script

import "net/http"

// Result is what a server script produced for one request: either data to
// render (Rendered) or a redirect (Redirect).
type Result interface {
	isResult()
}

// Rendered carries the data object the page template is rendered with.
type Rendered struct {
	Data any
}

// Redirect asks the server to redirect instead of rendering.
type Redirect struct {
	URL    string
	Status int
}

func (Rendered) isResult() {}
func (Redirect) isResult() {}

// DefaultRedirectStatus is used when a script does not pick one.
const DefaultRedirectStatus = http.StatusFound

// NormalizeStatus returns status if it is 301, 302, 303, 307 or 308,
// otherwise DefaultRedirectStatus.
func NormalizeStatus(status int) int {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return status
	}
	return DefaultRedirectStatus
}

// EmptyData is the data object of a page without a server script.
func EmptyData() map[string]any {
	return map[string]any{}
}
