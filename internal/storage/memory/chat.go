package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/storage"
)

type pairKey struct {
	clientID string
	lawyerID string
}

type userKey struct {
	id   string
	role models.Role
}

// ChatStore is an in-memory storage.Store. A single mutex serializes every
// operation; WithinTx holds it for the whole transaction and keeps an undo log.
type ChatStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation // conversationID -> conversation
	pairIndex     map[pairKey]string              // (client, lawyer) -> conversationID
	userIndex     map[string][]string             // userID -> []conversationID
	messages      map[string][]*models.Message    // conversationID -> messages in insertion order
	users         map[userKey]models.User
}

var _ storage.Store = (*ChatStore)(nil)

// NewChatStore creates an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*models.Conversation),
		pairIndex:     make(map[pairKey]string),
		userIndex:     make(map[string][]string),
		messages:      make(map[string][]*models.Message),
		users:         make(map[userKey]models.User),
	}
}

// AddUser registers a client or lawyer profile for GetUser lookups.
func (s *ChatStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userKey{id: u.ID, role: u.Role}] = u
}

func (s *ChatStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *ChatStore) Close() error { return nil }

// WithinTx runs fn while holding the store lock. If fn fails, its writes are undone in reverse order.
func (s *ChatStore) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (s *ChatStore) GetUser(ctx context.Context, id string, role models.Role) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userKey{id: id, role: role}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getConversation(id)
}

func (s *ChatStore) GetConversationForUpdate(ctx context.Context, id string) (*models.Conversation, error) {
	return s.GetConversation(ctx, id)
}

func (s *ChatStore) GetConversationByPair(ctx context.Context, clientID, lawyerID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getConversationByPair(clientID, lawyerID)
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createConversation(conv, nil)
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string, side models.Side) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listConversations(userID, side), nil
}

func (s *ChatStore) IncrementUnread(ctx context.Context, id string, side models.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUnread(id, side, 1, nil)
}

func (s *ChatStore) ResetUnread(ctx context.Context, id string, side models.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetUnread(id, side, nil)
}

func (s *ChatStore) UpdateSummary(ctx context.Context, id, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSummary(id, text, at, nil)
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessage(msg, nil)
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMessages(conversationID, offset, limit), nil
}

func (s *ChatStore) MarkReadExceptSender(ctx context.Context, conversationID string, reader models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markRead(conversationID, reader, nil), nil
}

// The lowercase methods below expect s.mu to be held. A non-nil undo slice
// collects the inverse of every write.

func (s *ChatStore) getConversation(id string) (*models.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *ChatStore) getConversationByPair(clientID, lawyerID string) (*models.Conversation, error) {
	id, ok := s.pairIndex[pairKey{clientID: clientID, lawyerID: lawyerID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.getConversation(id)
}

func (s *ChatStore) createConversation(conv *models.Conversation, undo *[]func()) error {
	key := pairKey{clientID: conv.ClientID, lawyerID: conv.LawyerID}
	if _, exists := s.pairIndex[key]; exists {
		return storage.ErrDuplicate
	}
	cp := *conv
	s.conversations[conv.ID] = &cp
	s.pairIndex[key] = conv.ID
	s.userIndex[conv.ClientID] = append(s.userIndex[conv.ClientID], conv.ID)
	s.userIndex[conv.LawyerID] = append(s.userIndex[conv.LawyerID], conv.ID)
	record(undo, func() {
		delete(s.conversations, conv.ID)
		delete(s.pairIndex, key)
		s.userIndex[conv.ClientID] = s.userIndex[conv.ClientID][:len(s.userIndex[conv.ClientID])-1]
		s.userIndex[conv.LawyerID] = s.userIndex[conv.LawyerID][:len(s.userIndex[conv.LawyerID])-1]
	})
	return nil
}

func (s *ChatStore) listConversations(userID string, side models.Side) []models.Conversation {
	result := []models.Conversation{}
	for _, id := range s.userIndex[userID] {
		conv := s.conversations[id]
		if (side == models.SideClient && conv.ClientID == userID) ||
			(side == models.SideLawyer && conv.LawyerID == userID) {
			result = append(result, *conv)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].LastMessageAt, result[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return result[i].CreatedAt.After(result[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return result
}

func (s *ChatStore) addUnread(id string, side models.Side, delta int, undo *[]func()) error {
	conv, ok := s.conversations[id]
	if !ok {
		return storage.ErrNotFound
	}
	counter := unreadCounter(conv, side)
	prev := *counter
	*counter += delta
	record(undo, func() { *counter = prev })
	return nil
}

func (s *ChatStore) resetUnread(id string, side models.Side, undo *[]func()) error {
	conv, ok := s.conversations[id]
	if !ok {
		return storage.ErrNotFound
	}
	counter := unreadCounter(conv, side)
	prev := *counter
	*counter = 0
	record(undo, func() { *counter = prev })
	return nil
}

func (s *ChatStore) updateSummary(id, text string, at time.Time, undo *[]func()) error {
	conv, ok := s.conversations[id]
	if !ok {
		return storage.ErrNotFound
	}
	prevText, prevAt := conv.LastMessage, conv.LastMessageAt
	conv.LastMessage = &text
	conv.LastMessageAt = &at
	record(undo, func() {
		conv.LastMessage = prevText
		conv.LastMessageAt = prevAt
	})
	return nil
}

func (s *ChatStore) appendMessage(msg *models.Message, undo *[]func()) error {
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return storage.ErrNotFound
	}
	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	record(undo, func() {
		msgs := s.messages[msg.ConversationID]
		s.messages[msg.ConversationID] = msgs[:len(msgs)-1]
	})
	return nil
}

func (s *ChatStore) listMessages(conversationID string, offset, limit int) []models.Message {
	all := make([]models.Message, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		all = append(all, *m)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []models.Message{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (s *ChatStore) markRead(conversationID string, reader models.User, undo *[]func()) int64 {
	var changed []*models.Message
	for _, m := range s.messages[conversationID] {
		ownMessage := m.SenderID == reader.ID && m.SenderRole == reader.Role
		if !ownMessage && !m.Read {
			m.Read = true
			changed = append(changed, m)
		}
	}
	record(undo, func() {
		for _, m := range changed {
			m.Read = false
		}
	})
	return int64(len(changed))
}

func unreadCounter(conv *models.Conversation, side models.Side) *int {
	if side == models.SideClient {
		return &conv.UnreadByClient
	}
	return &conv.UnreadByLawyer
}

func record(undo *[]func(), fn func()) {
	if undo != nil {
		*undo = append(*undo, fn)
	}
}

// memTx runs store operations under the lock already held by WithinTx.
type memTx struct {
	s    *ChatStore
	undo []func()
}

func (t *memTx) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return t.s.getConversation(id)
}

func (t *memTx) GetConversationForUpdate(ctx context.Context, id string) (*models.Conversation, error) {
	return t.s.getConversation(id)
}

func (t *memTx) GetConversationByPair(ctx context.Context, clientID, lawyerID string) (*models.Conversation, error) {
	return t.s.getConversationByPair(clientID, lawyerID)
}

func (t *memTx) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return t.s.createConversation(conv, &t.undo)
}

func (t *memTx) ListConversations(ctx context.Context, userID string, side models.Side) ([]models.Conversation, error) {
	return t.s.listConversations(userID, side), nil
}

func (t *memTx) IncrementUnread(ctx context.Context, id string, side models.Side) error {
	return t.s.addUnread(id, side, 1, &t.undo)
}

func (t *memTx) ResetUnread(ctx context.Context, id string, side models.Side) error {
	return t.s.resetUnread(id, side, &t.undo)
}

func (t *memTx) UpdateSummary(ctx context.Context, id, text string, at time.Time) error {
	return t.s.updateSummary(id, text, at, &t.undo)
}

func (t *memTx) AppendMessage(ctx context.Context, msg *models.Message) error {
	return t.s.appendMessage(msg, &t.undo)
}

func (t *memTx) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error) {
	return t.s.listMessages(conversationID, offset, limit), nil
}

func (t *memTx) MarkReadExceptSender(ctx context.Context, conversationID string, reader models.User) (int64, error) {
	return t.s.markRead(conversationID, reader, &t.undo), nil
}
