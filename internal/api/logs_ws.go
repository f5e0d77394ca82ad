package api

import (
	"net/http"
	"strconv"
	"strings"

	"qian/internal/logging"

	"github.com/gorilla/websocket"
)

const defaultLogReplay = 100

// LogsHandler streams log entries over a websocket. Buffered entries are
// replayed first, then live entries follow. ?level= sets the floor and
// ?replay= bounds the replayed tail (0 disables replay).
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	minLevel, replay, ok := parseLogStreamQuery(r)
	if !ok {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusBadRequest,
			Message: "invalid log stream query",
		})
		return
	}
	if h.Logger == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	// Subscribe before the handshake and the buffer snapshot so no entry
	// falls in between.
	live, unsubscribe := h.Logger.Subscribe(minLevel)
	defer unsubscribe()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	output := make(chan logging.LogEntry, defaultLogReplay)
	loop, err := startWSWriteLoop(wsStreamConfig[logging.LogEntry]{
		Conn:   conn,
		Output: output,
		Logger: h.Logger,
	})
	if err != nil {
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:  http.StatusInternalServerError,
			Message: "websocket writer unavailable",
			Err:     err,
		})
		return
	}
	defer loop.Stop()

	go func() {
		if replay > 0 && h.Logger.Buffer() != nil {
			tail := filterLogEntries(h.Logger.Buffer().List(), logQuery{Limit: replay, Level: minLevel})
			for _, entry := range tail {
				select {
				case output <- entry:
				case <-loop.Done():
					return
				}
			}
		}
		for entry := range live {
			select {
			case output <- entry:
			case <-loop.Done():
				return
			}
		}
	}()

	// The stream is write-only; reading surfaces the client's close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logDebug(h.Logger, "log stream read ended", map[string]string{"error": err.Error()})
			}
			return
		}
	}
}

func parseLogStreamQuery(r *http.Request) (logging.Level, int, bool) {
	values := r.URL.Query()
	var minLevel logging.Level
	if raw := strings.TrimSpace(values.Get("level")); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return "", 0, false
		}
		minLevel = level
	}
	replay := defaultLogReplay
	if raw := strings.TrimSpace(values.Get("replay")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return "", 0, false
		}
		replay = parsed
	}
	return minLevel, replay, true
}
