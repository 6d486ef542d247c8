package realtime

import (
	"chat-hub/auth"
	"chat-hub/errors"
	"chat-hub/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// Server upgrades authenticated requests to websocket sessions and turns
// their frames into hub operations. Frames of one session are handled in
// order, sessions run concurrently.
type Server struct {
	log        *slog.Logger
	hub        *services.Hub
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	bufferSize int
	opTimeout  time.Duration

	mu       sync.Mutex
	conns    map[string]*Connection
	closed   bool
	sessions sync.WaitGroup
}

func NewServer(log *slog.Logger, hub *services.Hub, bufferSize int, opTimeout time.Duration) *Server {
	return &Server{
		log:        log,
		hub:        hub,
		validate:   validator.New(),
		bufferSize: bufferSize,
		opTimeout:  opTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Requests are authenticated by token, not by cookie.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Connection),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		s.log.Debug("Upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	conn := NewConnection(s.log, identity.UserID, ws, s.bufferSize)
	conn.Start()
	if !s.track(conn) {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
		return
	}
	defer s.sessions.Done()
	caller := services.Caller{Conn: conn, DisplayName: identity.DisplayName}

	// The request context ends with the handler, the disconnect must not.
	ctx := context.WithoutCancel(r.Context())
	s.hub.Connect(ctx, caller)
	defer func() {
		s.hub.Disconnect(ctx, caller)
		s.untrack(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("Connection lost", "user_id", identity.UserID, "connection_id", conn.ID(), "error", err)
			}
			return
		}
		s.handle(ctx, caller, conn, data)
	}
}

// Shutdown refuses new sessions, closes the live ones and waits until
// their disconnects have run, or until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still closing: %w", ctx.Err())
	}
}

// track returns false once Shutdown has started.
func (s *Server) track(conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions.Add(1)
	s.conns[conn.ID()] = conn
	return true
}

func (s *Server) untrack(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.ID())
}

func (s *Server) handle(ctx context.Context, caller services.Caller, conn *Connection, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Debug("Malformed frame", "connection_id", conn.ID(), "error", err)
		return
	}
	err := s.validate.Struct(frame)
	if err != nil {
		err = fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	} else {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		err = s.dispatch(opCtx, caller, frame)
		cancel()
	}
	if frame.ID == "" {
		return
	}
	reply := replyFrame{ID: frame.ID, OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}
	if err = conn.reply(reply); err != nil {
		s.log.Debug("Cannot reply", "connection_id", conn.ID(), "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, caller services.Caller, frame inboundFrame) error {
	switch frame.Op {
	case OpSendMessage:
		data, err := decode[sendMessageData](s.validate, frame.Data)
		if err != nil {
			return err
		}
		return s.hub.SendMessage(ctx, caller, data.ConversationID, data.Content)
	case OpSendImageMessage, OpSendVoiceMessage:
		data, err := decode[mediaMessageData](s.validate, frame.Data)
		if err != nil {
			return err
		}
		if frame.Op == OpSendImageMessage {
			return s.hub.SendImageMessage(ctx, caller, data.ConversationID, data.MessageID)
		}
		return s.hub.SendVoiceMessage(ctx, caller, data.ConversationID, data.MessageID)
	case OpJoinConversation, OpLeaveConversation, OpStartTyping, OpStopTyping, OpMarkConversationAsRead:
		data, err := decode[conversationData](s.validate, frame.Data)
		if err != nil {
			return err
		}
		switch frame.Op {
		case OpJoinConversation:
			s.hub.JoinConversation(caller, data.ConversationID)
		case OpLeaveConversation:
			s.hub.LeaveConversation(caller, data.ConversationID)
		case OpStartTyping:
			s.hub.StartTyping(ctx, caller, data.ConversationID)
		case OpStopTyping:
			s.hub.StopTyping(ctx, caller, data.ConversationID)
		default:
			return s.hub.MarkConversationAsRead(ctx, caller, data.ConversationID)
		}
		return nil
	case OpEditMessage:
		data, err := decode[editMessageData](s.validate, frame.Data)
		if err != nil {
			return err
		}
		return s.hub.EditMessage(ctx, caller, data.MessageID, data.Content)
	case OpDeleteMessage, OpMarkMessageAsRead:
		data, err := decode[messageData](s.validate, frame.Data)
		if err != nil {
			return err
		}
		if frame.Op == OpDeleteMessage {
			return s.hub.DeleteMessage(ctx, caller, data.MessageID)
		}
		return s.hub.MarkMessageAsRead(ctx, caller, data.MessageID)
	default:
		return fmt.Errorf("%w: unknown operation %q", errors.ErrInvalidArgument, frame.Op)
	}
}
