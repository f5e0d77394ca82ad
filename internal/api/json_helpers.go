package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBodyBytes = 1 << 20

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	code := err.Code
	if code == "" {
		code = errorCodeForStatus(err.Status)
	}
	writeJSON(w, err.Status, errorResponse{
		Message: err.Message,
		Error:   err.Message,
		Code:    code,
	})
}

// decodeJSONBody decodes a bounded request body into target. An empty body
// leaves target untouched.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) *apiError {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return nil
}
