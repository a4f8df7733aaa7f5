package webthing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebThing message types.
const (
	MessageSetProperty    = "setProperty"
	MessagePropertyStatus = "propertyStatus"
	MessageError          = "error"
)

// Message is a WebSocket frame in either direction.
type Message struct {
	MessageType string         `json:"messageType"`
	Data        map[string]any `json:"data"`
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Host and origin checks are disabled so gateways on other hosts
		// can connect.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("failed to accept websocket", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe()
	defer sub.Close()

	logger := s.logger.With("subscriber", sub.ID.String(), "remote", r.RemoteAddr)
	logger.Info("websocket subscriber connected")
	defer logger.Info("websocket subscriber disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := wsjson.Write(ctx, conn, statusMessage(s.registry.Values())); err != nil {
		logger.Debug("failed to send initial status", "error", err)
		return
	}

	go func() {
		defer cancel()
		s.readLoop(ctx, conn, logger)
	}()

	for {
		select {
		case <-ctx.Done():
			if s.baseCtx.Err() != nil {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return
		case u, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, statusMessage(u.Values)); err != nil {
				logger.Debug("failed to send property status", "error", err)
				return
			}
		}
	}
}

// readLoop handles setProperty requests until the connection fails.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		if msg.MessageType != MessageSetProperty {
			s.sendError(ctx, conn, logger, http.StatusBadRequest,
				fmt.Sprintf("unsupported message type %q", msg.MessageType), msg)
			continue
		}

		// Apply in name order so multi-property requests are deterministic.
		names := make([]string, 0, len(msg.Data))
		for name := range msg.Data {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := s.registry.Set(name, msg.Data[name]); err != nil {
				logger.Debug("websocket set failed", "property", name, "error", err)
				s.sendError(ctx, conn, logger, statusFor(err), err.Error(), msg)
			}
		}
	}
}

func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, logger *slog.Logger, status int, message string, request Message) {
	reply := Message{
		MessageType: MessageError,
		Data: map[string]any{
			"status":  fmt.Sprintf("%d %s", status, http.StatusText(status)),
			"message": message,
			"request": request,
		},
	}
	if err := wsjson.Write(ctx, conn, reply); err != nil {
		logger.Debug("failed to send error", "error", err)
	}
}

func statusMessage(values map[string]any) Message {
	return Message{MessageType: MessagePropertyStatus, Data: values}
}

// StatusValues extracts the property values of a propertyStatus message.
func StatusValues(m Message) (map[string]any, error) {
	if m.MessageType != MessagePropertyStatus {
		return nil, fmt.Errorf("unexpected message type %q", m.MessageType)
	}
	return m.Data, nil
}
