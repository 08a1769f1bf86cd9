// Package chat turns chat operations into durable conversation state and
// best-effort notifications to online participants.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/metrics"
	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/storage"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// Deliverer pushes rendered frames to online users. *ws.Registry implements it.
type Deliverer interface {
	SendTo(userID string, payload []byte) bool
	Broadcast(payload []byte) int
}

// Router is the Message Router. It is safe for concurrent use by chat
// sessions and REST handlers.
type Router struct {
	store      storage.Store
	delivery   Deliverer
	dispatcher *Dispatcher
	logger     zerolog.Logger

	now       func() time.Time
	messageID func() string
}

// NewRouter creates a Router. dispatcher may be nil, in which case Announce is unavailable.
func NewRouter(store storage.Store, delivery Deliverer, dispatcher *Dispatcher, logger zerolog.Logger) *Router {
	return &Router{
		store:      store,
		delivery:   delivery,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "chat_router").Logger(),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		messageID: func() string { return ulid.Make().String() },
	}
}

// HandleFrame dispatches a decoded inbound frame on behalf of user.
func (r *Router) HandleFrame(ctx context.Context, user models.User, f InboundFrame) error {
	switch f.Type {
	case FrameMessage:
		_, err := r.SendMessage(ctx, user, f.ConversationID, f.Content)
		return err
	case FrameTyping:
		isTyping := f.IsTyping != nil && *f.IsTyping
		return r.Typing(ctx, user, f.ConversationID, isTyping)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
}

// SendMessage persists a message from sender, bumps the counterpart's unread
// counter, and delivers the message to both parties if they are online.
// Nothing is persisted when any step fails.
func (r *Router) SendMessage(ctx context.Context, sender models.User, conversationID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	var (
		msg         *models.Message
		counterpart string
	)
	err := r.store.WithinTx(ctx, func(tx storage.Tx) error {
		conv, err := tx.GetConversationForUpdate(ctx, conversationID)
		if err != nil {
			return storeErr(err, "conversation %s", conversationID)
		}
		if !conv.HasParty(sender) {
			return fmt.Errorf("%w: %s %s is not a party to conversation %s", ErrForbidden, sender.Role, sender.ID, conversationID)
		}
		counterpart = conv.Counterpart(sender)

		// Timestamps never go backwards within a conversation, even if the clock does.
		ts := r.now()
		if conv.LastMessageAt != nil && ts.Before(*conv.LastMessageAt) {
			ts = *conv.LastMessageAt
		}

		msg = &models.Message{
			ID:             r.messageID(),
			ConversationID: conv.ID,
			SenderID:       sender.ID,
			SenderRole:     sender.Role,
			SenderName:     sender.Name,
			Content:        content,
			Timestamp:      ts,
			Read:           false,
		}
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return storeErr(err, "append message")
		}
		if err := tx.UpdateSummary(ctx, conv.ID, content, ts); err != nil {
			return storeErr(err, "update summary")
		}
		if err := tx.IncrementUnread(ctx, conv.ID, conv.SideOf(sender).Other()); err != nil {
			return storeErr(err, "increment unread")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	payload, err := json.Marshal(MessageFrame{
		Type:           FrameMessage,
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		SenderRole:     string(msg.SenderRole),
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("render message frame: %w", err)
	}
	r.deliver(sender.ID, payload)
	r.deliver(counterpart, payload)

	r.logger.Debug().Str("conversation_id", msg.ConversationID).Str("message_id", msg.ID).
		Str("sender_id", sender.ID).Msg("message sent")
	return msg, nil
}

// Typing forwards a typing indicator to the counterpart if they are online. Nothing is stored.
func (r *Router) Typing(ctx context.Context, user models.User, conversationID string, isTyping bool) error {
	conv, err := r.authorize(ctx, user, conversationID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(TypingFrame{
		Type:           FrameTyping,
		ConversationID: conv.ID,
		UserID:         user.ID,
		IsTyping:       isTyping,
	})
	if err != nil {
		return fmt.Errorf("render typing frame: %w", err)
	}
	r.deliver(conv.Counterpart(user), payload)
	return nil
}

// GetOrCreateConversation returns the conversation between user and otherUserID,
// creating it on first contact. Concurrent first contacts resolve to one conversation.
func (r *Router) GetOrCreateConversation(ctx context.Context, user models.User, otherUserID string) (*models.Conversation, error) {
	otherRole, ok := user.Role.Counterpart()
	if !ok {
		return nil, fmt.Errorf("%w: role %s cannot start conversations", ErrForbidden, user.Role)
	}
	if otherUserID == "" {
		return nil, fmt.Errorf("%w: other user id is required", ErrInvalidInput)
	}

	other, err := r.store.GetUser(ctx, otherUserID, otherRole)
	if err != nil {
		return nil, storeErr(err, "%s %s", otherRole, otherUserID)
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: r.now(),
	}
	switch user.Role {
	case models.RoleClient:
		conv.ClientID, conv.ClientName = user.ID, user.Name
		conv.LawyerID, conv.LawyerName = other.ID, other.Name
	case models.RoleLawyer:
		conv.ClientID, conv.ClientName = other.ID, other.Name
		conv.LawyerID, conv.LawyerName = user.ID, user.Name
	}

	existing, err := r.store.GetConversationByPair(ctx, conv.ClientID, conv.LawyerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr(err, "conversation lookup")
	}

	err = r.store.CreateConversation(ctx, conv)
	if errors.Is(err, storage.ErrDuplicate) {
		// Someone else created it between our lookup and insert.
		existing, err := r.store.GetConversationByPair(ctx, conv.ClientID, conv.LawyerID)
		if err != nil {
			return nil, storeErr(err, "conversation lookup")
		}
		return existing, nil
	}
	if err != nil {
		return nil, storeErr(err, "create conversation")
	}

	r.logger.Info().Str("conversation_id", conv.ID).Str("client_id", conv.ClientID).
		Str("lawyer_id", conv.LawyerID).Msg("conversation created")
	return conv, nil
}

// MarkAsRead marks every message from the counterpart as read and resets the
// caller's unread counter. The counterpart is not notified.
func (r *Router) MarkAsRead(ctx context.Context, user models.User, conversationID string) error {
	return r.store.WithinTx(ctx, func(tx storage.Tx) error {
		conv, err := tx.GetConversationForUpdate(ctx, conversationID)
		if err != nil {
			return storeErr(err, "conversation %s", conversationID)
		}
		if !conv.HasParty(user) {
			return fmt.Errorf("%w: %s %s is not a party to conversation %s", ErrForbidden, user.Role, user.ID, conversationID)
		}
		if _, err := tx.MarkReadExceptSender(ctx, conv.ID, user); err != nil {
			return storeErr(err, "mark read")
		}
		if err := tx.ResetUnread(ctx, conv.ID, conv.SideOf(user)); err != nil {
			return storeErr(err, "reset unread")
		}
		return nil
	})
}

// ListConversations returns the caller's conversations, most recently active first.
func (r *Router) ListConversations(ctx context.Context, user models.User) ([]models.Conversation, error) {
	var side models.Side
	switch user.Role {
	case models.RoleClient:
		side = models.SideClient
	case models.RoleLawyer:
		side = models.SideLawyer
	default:
		return []models.Conversation{}, nil
	}
	convs, err := r.store.ListConversations(ctx, user.ID, side)
	if err != nil {
		return nil, storeErr(err, "list conversations")
	}
	return convs, nil
}

// ListMessages returns a page of the conversation history in ascending time order.
func (r *Router) ListMessages(ctx context.Context, user models.User, conversationID string, skip, limit int) ([]models.Message, error) {
	if _, err := r.authorize(ctx, user, conversationID); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := r.store.ListMessages(ctx, conversationID, skip, limit)
	if err != nil {
		return nil, storeErr(err, "list messages")
	}
	return msgs, nil
}

// Announce queues a broadcast to every connected user. Only admins may announce.
func (r *Router) Announce(ctx context.Context, user models.User, content string) error {
	if user.Role != models.RoleAdmin {
		return fmt.Errorf("%w: only admins can announce", ErrForbidden)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if r.dispatcher == nil {
		return fmt.Errorf("%w: announcements are disabled", ErrQueueFull)
	}
	payload, err := json.Marshal(AnnouncementFrame{
		Type:       FrameAnnouncement,
		SenderName: user.Name,
		Content:    content,
		Timestamp:  r.now(),
	})
	if err != nil {
		return fmt.Errorf("render announcement: %w", err)
	}
	return r.dispatcher.Enqueue(ctx, Notification{Payload: payload})
}

// authorize loads the conversation and checks that user is one of its parties.
func (r *Router) authorize(ctx context.Context, user models.User, conversationID string) (*models.Conversation, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeErr(err, "conversation %s", conversationID)
	}
	if !conv.HasParty(user) {
		return nil, fmt.Errorf("%w: %s %s is not a party to conversation %s", ErrForbidden, user.Role, user.ID, conversationID)
	}
	return conv, nil
}

func (r *Router) deliver(userID string, payload []byte) {
	if r.delivery.SendTo(userID, payload) {
		metrics.Deliveries.WithLabelValues("delivered").Inc()
		return
	}
	metrics.Deliveries.WithLabelValues("offline").Inc()
}

// storeErr translates a storage error into the chat taxonomy.
func storeErr(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransientStore, what, err)
	}
}
