package script

import (
	"net"
	"net/http"
	"strings"
)

// requestObject builds the value a script's default export receives.
func requestObject(req *http.Request) map[string]interface{} {
	query := make(map[string]interface{})
	for k, vs := range req.URL.Query() {
		if len(vs) == 1 {
			query[k] = vs[0]
			continue
		}
		values := make([]interface{}, len(vs))
		for i, v := range vs {
			values[i] = v
		}
		query[k] = values
	}

	headers := make(map[string]interface{}, len(req.Header))
	for k, vs := range req.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}

	cookies := make(map[string]interface{})
	for _, c := range req.Cookies() {
		cookies[c.Name] = c.Value
	}

	remote := req.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}

	protocol := "http"
	if req.TLS != nil {
		protocol = "https"
	}

	return map[string]interface{}{
		"method":        req.Method,
		"url":           req.URL.RequestURI(),
		"path":          req.URL.Path,
		"query":         query,
		"headers":       headers,
		"cookies":       cookies,
		"host":          req.Host,
		"remoteAddress": remote,
		"protocol":      protocol,
	}
}
