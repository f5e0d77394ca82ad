package api

import (
	"net/http"
	"strings"
	"time"

	"qian/internal/bridge"
	"qian/internal/config"
	"qian/internal/logging"
	"qian/internal/shell"
	"qian/internal/watcher"
)

// RestHandler mirrors the websocket operations over HTTP.
type RestHandler struct {
	Controller Controller
	Logger     *logging.Logger
	// WatchStats and Launched feed /api/status when set.
	WatchStats func() watcher.Metrics
	Launched   func() []shell.Launched
	StartedAt  time.Time
	Version    string
}

type pathRequest struct {
	Path string `json:"path"`
}

type terminalRequest struct {
	App  string `json:"app"`
	Path string `json:"path"`
}

type okResponse struct {
	Status string `json:"status"`
}

type statusResponse struct {
	bridge.Status
	Version  string           `json:"version,omitempty"`
	Uptime   string           `json:"uptime,omitempty"`
	Watcher  *watcher.Metrics `json:"watcher,omitempty"`
	Launched []shell.Launched `json:"launched,omitempty"`
}

func (h *RestHandler) requireController() *apiError {
	if h.Controller == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "bridge unavailable"}
	}
	return nil
}

func (h *RestHandler) handleSession(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h.Controller.Session())
	return nil
}

// handleTree navigates to ?path=, or re-lists the browsed directory when the
// parameter is absent.
func (h *RestHandler) handleTree(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	query := r.URL.Query()
	path := query.Get("path")
	if !query.Has("path") {
		path = h.Controller.Session().Current
	}
	listing, err := h.Controller.RequestTree(r.Context(), path)
	if err != nil {
		return errorFromBridge(err)
	}
	writeJSON(w, http.StatusOK, newTreeSnapshotMessage(listing))
	return nil
}

func (h *RestHandler) handleOpen(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	var request pathRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		return err
	}
	if err := h.Controller.OpenFile(request.Path); err != nil {
		return errorFromBridge(err)
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
	return nil
}

// handleReveal reveals the given path, or the browsed directory for an empty
// body.
func (h *RestHandler) handleReveal(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	var request pathRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		return err
	}
	var err error
	if strings.TrimSpace(request.Path) == "" {
		err = h.Controller.RevealCurrent()
	} else {
		err = h.Controller.Reveal(request.Path)
	}
	if err != nil {
		return errorFromBridge(err)
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
	return nil
}

func (h *RestHandler) handleTerminal(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	var request terminalRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		return err
	}
	var err error
	switch {
	case strings.TrimSpace(request.Path) == "" && strings.TrimSpace(request.App) == "":
		err = h.Controller.OpenCurrentInTerminal()
	case strings.TrimSpace(request.Path) == "":
		err = h.Controller.OpenInTerminal(request.App, h.Controller.Session().Current)
	default:
		err = h.Controller.OpenInTerminal(request.App, request.Path)
	}
	if err != nil {
		return errorFromBridge(err)
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
	return nil
}

func (h *RestHandler) handlePreferences(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireController(); err != nil {
		return err
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Controller.Preferences())
		return nil
	case http.MethodPut:
		var request config.Preferences
		if err := decodeJSONBody(w, r, &request); err != nil {
			return err
		}
		prefs, err := h.Controller.UpdateTerminalPreference(r.Context(), request)
		if err != nil {
			return errorFromBridge(err)
		}
		writeJSON(w, http.StatusOK, prefs)
		return nil
	default:
		return methodNotAllowed(w, "GET, PUT")
	}
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireController(); err != nil {
		return err
	}
	response := statusResponse{
		Status:  h.Controller.Status(),
		Version: h.Version,
	}
	if !h.StartedAt.IsZero() {
		response.Uptime = time.Since(h.StartedAt).Round(time.Second).String()
	}
	if h.WatchStats != nil {
		stats := h.WatchStats()
		response.Watcher = &stats
	}
	if h.Launched != nil {
		response.Launched = h.Launched()
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}
