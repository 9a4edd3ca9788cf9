package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/asyncapp/internal/api/shared"
	"github.com/phrazzld/asyncapp/internal/messenger"
	"github.com/phrazzld/asyncapp/internal/probe"
	"github.com/phrazzld/asyncapp/internal/task"
)

// writeWait bounds a single websocket write
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	CheckOrigin:      func(_ *http.Request) bool { return true },
}

// streamChannels are the namespace suffixes that can be streamed
var streamChannels = map[string]bool{
	task.TaskMonitorSuffix:        true,
	task.PeriodicalsMonitorSuffix: true,
	probe.ProcessMonitorSuffix:    true,
	probe.SystemMonitorSuffix:     true,
}

// StreamHandler forwards monitor messages to websocket clients.
type StreamHandler struct {
	ctx       context.Context
	messenger messenger.Messenger
	appName   string
	logger    *slog.Logger
}

// NewStreamHandler creates a handler streaming namespaces of appName. Open
// streams are closed when ctx is cancelled.
func NewStreamHandler(ctx context.Context, m messenger.Messenger, appName string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		ctx:       ctx,
		messenger: m,
		appName:   appName,
		logger:    logger.With("component", "stream_handler"),
	}
}

// Stream upgrades the request to a websocket and sends the latest value of
// the requested channel followed by every message published to it.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !streamChannels[channel] {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown status channel")
		return
	}
	ns := messenger.Namespace(h.appName, channel)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Debug("failed to upgrade request to websocket", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	// The reader only detects the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("stream opened", "namespace", ns, "remote_addr", r.RemoteAddr)

	var latest json.RawMessage
	if err := h.messenger.Get(ctx, ns, &latest); err == nil {
		if err := write(ws, latest); err != nil {
			return
		}
	} else if !errors.Is(err, messenger.ErrNotFound) {
		h.logger.Warn("failed to read latest value", "namespace", ns, "error", err)
	}

	err = h.messenger.Subscribe(ctx, ns, func(_ context.Context, msg messenger.Message) error {
		if err := write(ws, msg.Payload); err != nil {
			cancel()
			return err
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("stream ended with error", "namespace", ns, "error", err)
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	h.logger.Debug("stream closed", "namespace", ns)
}

func write(ws *websocket.Conn, payload []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, payload)
}
