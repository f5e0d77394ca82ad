package api

import (
	"mime"
	"net/http"
	"strings"

	"qian/internal/logging"

	"github.com/google/uuid"
)

type apiError struct {
	Status  int
	Message string
	Code    string
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

const (
	cacheControlNoStore = "no-store, must-revalidate"
	requestIDHeader     = "X-Request-ID"
)

func setSecurityHeaders(w http.ResponseWriter, cacheControl string) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		headers.Set("Cache-Control", cacheControl)
	}
}

func securityHeadersHandler(cacheControl string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next(w, r)
	}
}

func securityHeadersMiddleware(cacheControl string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return next(w, r)
	}
}

// originMiddleware rejects state-changing requests sent by a foreign page.
// Reads stay open to any origin; the browser keeps their responses from it.
func originMiddleware(allowed []string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !isSafeMethod(r.Method) && !isOriginAllowed(r, allowed) {
			return &apiError{Status: http.StatusForbidden, Message: "origin not allowed"}
		}
		return next(w, r)
	}
}

// jsonBodyMiddleware requires a JSON media type on POST and PUT bodies, so a
// cross-site form or text/plain request cannot skip the CORS preflight.
func jsonBodyMiddleware(next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.ContentLength != 0 {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				return &apiError{Status: http.StatusUnsupportedMediaType, Message: "content type must be application/json"}
			}
		}
		return next(w, r)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// authHandler guards a plain http.Handler with the bearer token.
func authHandler(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !validateToken(r, token) {
			writeJSONError(w, &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonErrorMiddleware(next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			writeJSONError(w, err)
		}
	}
}

// loggingMiddleware tags every request with an id, reusing one supplied by
// the client.
func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		if logger != nil {
			logger.Debug("api request", map[string]string{
				"qian.category": "api",
				"qian.source":   "backend",
				"method":        r.Method,
				"path":          r.URL.Path,
				"request_id":    requestID,
			})
		}
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}

func restHandler(token string, allowedOrigins []string, handler apiHandler) http.HandlerFunc {
	return securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(
		authMiddleware(token, originMiddleware(allowedOrigins, jsonBodyMiddleware(handler))),
	))
}
