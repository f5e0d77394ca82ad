package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"qian/internal/bridge"
	"qian/internal/event"
	"qian/internal/logging"
	"qian/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultMessagesPerSecond = 20
	defaultMessageBurst      = 40
	outboundBufferSize       = 64
	maxInboundMessageBytes   = 64 << 10
)

var errUnknownMessage = errors.New("unknown message type")

// BridgeHandler serves the UI websocket. Each connection gets the session
// state, every bus signal, and replies to its own requests, all written by
// one goroutine.
type BridgeHandler struct {
	Controller     Controller
	Bus            *event.Bus[bridge.Signal]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	// MessagesPerSecond limits inbound messages per connection. Zero uses
	// the default; a negative value disables limiting.
	MessagesPerSecond float64
	MessageBurst      int
}

func (h *BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Controller == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "bridge unavailable",
		})
		return
	}

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
	conn.SetReadLimit(maxInboundMessageBytes)

	clientID := uuid.NewString()
	logger := h.Logger.With(map[string]string{"client_id": clientID})
	h.Metrics.AddWSConnection(1)
	defer h.Metrics.AddWSConnection(-1)

	outbound := make(chan any, outboundBufferSize)
	loop, err := startWSWriteLoop(wsStreamConfig[any]{
		Conn:   conn,
		Output: outbound,
		Logger: logger,
		OnWrite: func(payload any) {
			h.Metrics.IncWSMessage("out", messageType(payload))
		},
	})
	if err != nil {
		writeWSError(w, r, conn, logger, wsError{
			Status:  http.StatusInternalServerError,
			Message: "websocket writer unavailable",
			Err:     err,
		})
		return
	}
	defer loop.Stop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	send := func(payload any) bool {
		select {
		case outbound <- payload:
			return true
		case <-loop.Done():
			return false
		case <-ctx.Done():
			return false
		}
	}

	send(sessionMessage{Type: msgSession, ClientID: clientID, SessionInfo: h.Controller.Session()})

	if h.Bus != nil {
		signals, unsubscribe := h.Bus.Subscribe()
		defer unsubscribe()
		go func() {
			for signal := range signals {
				payload, ok := signalPayload(signal)
				if !ok {
					continue
				}
				if !send(payload) {
					return
				}
			}
		}()
	}

	logDebug(logger, "websocket client connected", nil)
	limiter := h.newLimiter()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logDebug(logger, "websocket read ended", map[string]string{"error": err.Error()})
			}
			return
		}

		var message clientMessage
		if err := json.Unmarshal(data, &message); err != nil {
			h.Metrics.IncWSMessage("in", "invalid")
			if !send(errorMessage{Type: msgError, Kind: string(bridge.KindInvalidArgument), Message: "invalid message"}) {
				return
			}
			continue
		}
		h.Metrics.IncWSMessage("in", message.Type)

		if limiter != nil && !limiter.Allow() {
			if !send(errorMessage{Type: msgError, Kind: kindRateLimited, Message: "too many messages", ID: message.ID}) {
				return
			}
			continue
		}

		if reply := h.dispatch(ctx, message); reply != nil {
			if !send(reply) {
				return
			}
		}
	}
}

// dispatch runs one client request. A successful request_tree has no direct
// reply when a bus is present: the tree_snapshot signal reaches every client.
func (h *BridgeHandler) dispatch(ctx context.Context, message clientMessage) any {
	var err error
	switch message.Type {
	case msgRequestTree:
		listing, treeErr := h.Controller.RequestTree(ctx, message.Path)
		if treeErr != nil {
			reply := newErrorMessage(treeErr, message.ID)
			reply.Path = message.Path
			return reply
		}
		if h.Bus == nil {
			return newTreeSnapshotMessage(listing)
		}
		return nil
	case msgOpenFile:
		err = h.Controller.OpenFile(message.Path)
	case msgReveal:
		err = h.Controller.Reveal(message.Path)
	case msgOpenInTerminal:
		err = h.Controller.OpenInTerminal(message.App, message.Path)
	case msgRevealCurrent:
		err = h.Controller.RevealCurrent()
	case msgOpenCurrentInTerminal:
		err = h.Controller.OpenCurrentInTerminal()
	case msgUpdateTerminalPreference:
		if message.Preferences == nil {
			return errorMessage{Type: msgError, Kind: string(bridge.KindInvalidArgument), Message: "preferences are required", ID: message.ID}
		}
		prefs, updateErr := h.Controller.UpdateTerminalPreference(ctx, *message.Preferences)
		if updateErr != nil {
			return newErrorMessage(updateErr, message.ID)
		}
		return preferencesMessage{Type: msgPreferences, ID: message.ID, Preferences: prefs}
	default:
		return errorMessage{
			Type:    msgError,
			Kind:    string(bridge.KindInvalidArgument),
			Message: fmt.Sprintf("%v: %q", errUnknownMessage, message.Type),
			ID:      message.ID,
		}
	}
	if err != nil {
		return newErrorMessage(err, message.ID)
	}
	return ackMessage{Type: msgAck, ID: message.ID, Request: message.Type}
}

func (h *BridgeHandler) newLimiter() *rate.Limiter {
	perSecond := h.MessagesPerSecond
	if perSecond < 0 {
		return nil
	}
	if perSecond == 0 {
		perSecond = defaultMessagesPerSecond
	}
	burst := h.MessageBurst
	if burst <= 0 {
		burst = defaultMessageBurst
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func logDebug(logger *logging.Logger, message string, fields map[string]string) {
	if logger == nil {
		return
	}
	merged := map[string]string{
		"qian.category": "api",
		"qian.source":   "backend",
	}
	for key, value := range fields {
		merged[key] = value
	}
	logger.Debug(message, merged)
}
