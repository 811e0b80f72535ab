package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"paywall/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

var errStreamLagged = errors.New("event stream lagged")

// eventSource is the subscription side of the event bus.
type eventSource interface {
	C() <-chan *types.Event
	Dropped() uint64
}

// handleEventStream streams committed events as JSON text frames. An optional
// comma separated types query narrows the stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "event stream is not configured", nil)
		return
	}
	filter := parseTypeFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.wsOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := s.bus.Subscribe(wsBuffer)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())
	send := func(evt *types.Event) error { return writeEvent(ctx, conn, evt) }
	err = streamEvents(ctx, sub, filter, send)
	switch {
	case errors.Is(err, errStreamLagged):
		s.logger.Warn("closing lagging event stream", "remote", r.RemoteAddr, "dropped", sub.Dropped())
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
	case err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

// streamEvents forwards events from src until ctx ends or the source closes.
// Once the source has dropped an event the stream has a gap and is abandoned
// with errStreamLagged.
func streamEvents(ctx context.Context, src eventSource, filter map[string]struct{}, send func(*types.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-src.C():
			if !ok {
				return nil
			}
			if src.Dropped() > 0 {
				return errStreamLagged
			}
			if len(filter) > 0 {
				if _, wanted := filter[evt.Type]; !wanted {
					continue
				}
			}
			if err := send(evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out[trimmed] = struct{}{}
		}
	}
	return out
}
