package addon

import (
	"net/http"
	"strings"
)

// DetectBaseURL derives the externally visible base URL of the addon from
// forwarded headers, so the served manifest points back through whatever
// proxy or tunnel fronts the service. Returns "" when no host can be
// determined.
//
// Precedence: RFC 7239 Forwarded (first element), then the de facto
// X-Forwarded-* headers, then the plain Host header.
func DetectBaseURL(r *http.Request) string {
	proto := forwardedParam(r, "proto")
	if proto == "" {
		proto = firstHeaderValue(r, "X-Forwarded-Proto")
	}
	host := forwardedParam(r, "host")
	if host == "" {
		host = firstHeaderValue(r, "X-Forwarded-Host")
	}
	port := forwardedParam(r, "port")
	if port == "" {
		port = firstHeaderValue(r, "X-Forwarded-Port")
	}

	scheme := proto
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}
	if port != "" && !hostContainsPort(host) {
		host = host + ":" + port
	}
	return strings.TrimRight(scheme+"://"+host, "/")
}

// firstHeaderValue returns the first comma-separated element of a header.
// Proxies append their value, so the first entry is the original client edge.
func firstHeaderValue(r *http.Request, name string) string {
	raw := r.Header.Get(name)
	if raw == "" {
		return ""
	}
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// forwardedParam extracts a parameter from the first element of an RFC 7239
// Forwarded header.
func forwardedParam(r *http.Request, param string) string {
	raw := r.Header.Get("Forwarded")
	if raw == "" {
		return ""
	}
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	for _, pair := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(key), param) {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		return value
	}
	return ""
}

func hostContainsPort(host string) bool {
	if host == "" {
		return false
	}
	if strings.HasPrefix(host, "[") {
		end := strings.IndexByte(host, ']')
		return end > 0 && end+1 < len(host) && host[end+1] == ':'
	}
	first := strings.IndexByte(host, ':')
	if first < 0 {
		return false
	}
	return !strings.Contains(host[first+1:], ":")
}
