package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/chat"
	"github.com/Vasu1712/legalwise-backend/internal/metrics"
	"github.com/Vasu1712/legalwise-backend/internal/middleware"
	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/ws"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateReading
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateReading:
		return "reading"
	default:
		return "closed"
	}
}

const presenceTimeout = 2 * time.Second

// session is one chat connection. Its methods run on the handler goroutine only.
type session struct {
	h      *ChatHandler
	conn   *websocket.Conn
	client *ws.Client
	user   models.User
	state  sessionState
	logger zerolog.Logger
}

// ServeWS handles GET /ws/chat. The credential travels as the token query
// parameter, or as a bearer header for non-browser clients.
func (h *ChatHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s := &session{h: h, conn: conn, state: stateConnecting, logger: h.logger}
	s.serve(r.Context(), token)
}

func (s *session) serve(ctx context.Context, token string) {
	user, err := s.h.verifier.Verify(token)
	if err != nil {
		s.logger.Info().Err(err).Msg("chat session rejected")
		metrics.SessionsClosed.WithLabelValues("unauthenticated").Inc()
		ws.Reject(s.conn, websocket.ClosePolicyViolation, "authentication failed")
		s.state = stateClosed
		return
	}

	s.user = user
	s.state = stateAuthenticated
	s.logger = s.logger.With().Str("user_id", user.ID).Str("role", string(user.Role)).Logger()
	s.client = ws.NewClient(s.conn, user.ID, s.h.opts.SendBufferSize, s.logger)
	s.client.Start()

	if prev := s.h.registry.Register(user.ID, s.client, user.Role, user.Name); prev != nil {
		prev.Close(ws.CloseSessionReplaced, "session replaced")
	}

	code, reason := websocket.CloseInternalServerErr, "internal error"
	defer func() { s.close(ctx, code, reason) }()

	s.markOnline(ctx)
	go s.keepPresence(ctx)

	if err := ws.PrepareRead(s.conn, s.h.opts.MaxFrameBytes); err != nil {
		s.logger.Debug().Err(err).Msg("prepare read")
		code, reason = websocket.CloseAbnormalClosure, ""
		return
	}

	s.state = stateReading
	s.logger.Info().Msg("chat session started")
	code, reason = s.readLoop(ctx)
}

// readLoop processes frames one at a time until the session must end, and
// returns the close code and reason to send.
func (s *session) readLoop(ctx context.Context) (int, string) {
	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case ws.IsClientGone(err):
				return websocket.CloseNormalClosure, ""
			case errors.Is(err, websocket.ErrReadLimit):
				metrics.FramesReceived.WithLabelValues("malformed").Inc()
				return websocket.CloseMessageTooBig, "frame too large"
			default:
				s.logger.Debug().Err(err).Msg("read failed")
				return websocket.CloseAbnormalClosure, ""
			}
		}

		if msgType != websocket.TextMessage {
			metrics.FramesReceived.WithLabelValues("malformed").Inc()
			return websocket.CloseUnsupportedData, "text frames only"
		}

		frame, err := chat.DecodeFrame(raw)
		if err != nil {
			metrics.FramesReceived.WithLabelValues("malformed").Inc()
			s.logger.Info().Err(err).Msg("closing session on malformed frame")
			return websocket.ClosePolicyViolation, "malformed frame"
		}
		metrics.FramesReceived.WithLabelValues(frame.Type).Inc()

		if err := s.h.router.HandleFrame(ctx, s.user, frame); err != nil {
			if chat.IsTerminal(err) {
				return websocket.ClosePolicyViolation, chat.Code(err)
			}
			s.reportError(frame.ConversationID, err)
		}
	}
}

// reportError echoes a failed frame back to its sender over the same socket.
func (s *session) reportError(conversationID string, err error) {
	if errors.Is(err, chat.ErrTransientStore) {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("frame failed")
	} else {
		s.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("frame rejected")
	}
	payload, mErr := json.Marshal(chat.NewErrorFrame(conversationID, err))
	if mErr != nil {
		return
	}
	if sErr := s.client.Send(payload); sErr != nil {
		s.logger.Debug().Err(sErr).Msg("could not report frame error")
	}
}

// close is safe to call more than once. A session that has been replaced
// leaves its successor registered and online.
func (s *session) close(ctx context.Context, code int, reason string) {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed

	removed := s.h.registry.UnregisterConn(s.user.ID, s.client)
	if removed || !s.h.registry.IsOnline(s.user.ID) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
		defer cancel()
		if err := s.h.presence.MarkOffline(pctx, s.user.ID, s.client.ID); err != nil {
			s.logger.Warn().Err(err).Msg("presence mark offline failed")
		}
	}
	s.client.Close(code, reason)

	label := "closed"
	switch code {
	case websocket.CloseNormalClosure:
		label = "client_closed"
	case websocket.ClosePolicyViolation, websocket.CloseUnsupportedData, websocket.CloseMessageTooBig:
		label = "protocol_violation"
	case websocket.CloseAbnormalClosure:
		label = "transport_error"
	}
	metrics.SessionsClosed.WithLabelValues(label).Inc()
	s.logger.Info().Int("code", code).Str("reason", reason).Msg("chat session closed")
}

func (s *session) markOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	if err := s.h.presence.MarkOnline(pctx, s.user, s.client.ID); err != nil {
		s.logger.Warn().Err(err).Msg("presence mark online failed")
	}
}

// keepPresence refreshes the shared presence key until the client closes.
func (s *session) keepPresence(ctx context.Context) {
	if s.h.opts.PresenceTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.h.opts.PresenceTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.client.Done():
			return
		case <-ticker.C:
			if !s.h.registry.IsCurrent(s.user.ID, s.client) {
				return
			}
			s.markOnline(ctx)
		}
	}
}
