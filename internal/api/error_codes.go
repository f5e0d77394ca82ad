package api

import (
	"net/http"

	"qian/internal/bridge"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

func statusForKind(kind bridge.Kind) int {
	switch kind {
	case bridge.KindInvalidPath, bridge.KindInvalidArgument:
		return http.StatusBadRequest
	case bridge.KindNotFound:
		return http.StatusNotFound
	case bridge.KindNotADirectory:
		return http.StatusConflict
	case bridge.KindPermissionDenied:
		return http.StatusForbidden
	case bridge.KindWatchUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorFromBridge renders a controller failure with its kind as the code.
func errorFromBridge(err error) *apiError {
	if err == nil {
		return nil
	}
	kind := bridge.KindOf(err)
	return &apiError{
		Status:  statusForKind(kind),
		Message: err.Error(),
		Code:    string(kind),
	}
}
