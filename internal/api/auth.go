package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}

	queryToken := r.URL.Query().Get("token")
	if queryToken != "" {
		return queryToken == token
	}

	return false
}

// isOriginAllowed accepts requests without an Origin, origins listed in
// allowed, and otherwise only the request's own host.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(origin, allowedOrigin) || strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	host := hostport
	if strings.HasPrefix(hostport, "[") {
		if parsedHost, _, err := net.SplitHostPort(hostport); err == nil {
			host = parsedHost
		}
		return strings.Trim(host, "[]")
	}

	if parsedHost, _, err := net.SplitHostPort(hostport); err == nil {
		host = parsedHost
	}

	return host
}
