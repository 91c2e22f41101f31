package transport

import (
	"net/http"
	"strings"
)

// clientWithHeaders returns base with a transport that adds headers to
// every request. Headers already present on a request win.
func clientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	clone := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		clone[k] = v
	}
	if len(clone) == 0 {
		return base
	}
	if base == nil {
		base = &http.Client{}
	}
	c := *base
	c.Transport = &headerRoundTripper{base: base.Transport, headers: clone}
	return &c
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := h.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	for key, value := range h.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	return base.RoundTrip(req)
}
