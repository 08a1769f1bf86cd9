package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/storage"
)

// uniqueViolation is the SQLSTATE PostgreSQL reports for a broken UNIQUE constraint.
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresChatStore implements storage.Store using PostgreSQL.
type PostgresChatStore struct {
	queries
	db     *sql.DB
	logger zerolog.Logger
}

var _ storage.Store = (*PostgresChatStore)(nil)

// NewPostgresChatStore opens the connection pool and makes sure the chat tables exist.
func NewPostgresChatStore(ctx context.Context, dataSourceName string, logger zerolog.Logger) (*PostgresChatStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection for chat: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database for chat: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat schema: %w", err)
	}

	logger.Info().Msg("connected to PostgreSQL for chat")
	return &PostgresChatStore{queries: queries{q: db}, db: db, logger: logger}, nil
}

// WithinTx runs fn inside a database transaction.
func (s *PostgresChatStore) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresChatStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresChatStore) Close() error {
	return s.db.Close()
}

// GetUser looks up a client or lawyer profile in the account tables.
func (s *PostgresChatStore) GetUser(ctx context.Context, id string, role models.Role) (*models.User, error) {
	var table string
	switch role {
	case models.RoleClient:
		table = "clients"
	case models.RoleLawyer:
		table = "lawyers"
	default:
		return nil, storage.ErrNotFound
	}

	u := &models.User{Role: role}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM `+table+` WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", role, id, err)
	}
	return u, nil
}

// queries holds the statements shared by the pool and by transactions.
type queries struct {
	q    querier
	inTx bool
}

const conversationColumns = `id, client_id, lawyer_id, client_name, lawyer_name, last_message, last_message_at,
	unread_by_client, unread_by_lawyer, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var lastMessage sql.NullString
	var lastMessageAt sql.NullTime
	err := row.Scan(
		&conv.ID, &conv.ClientID, &conv.LawyerID, &conv.ClientName, &conv.LawyerName,
		&lastMessage, &lastMessageAt, &conv.UnreadByClient, &conv.UnreadByLawyer, &conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastMessage.Valid {
		conv.LastMessage = &lastMessage.String
	}
	if lastMessageAt.Valid {
		at := lastMessageAt.Time.UTC()
		conv.LastMessageAt = &at
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	return conv, nil
}

func (qs *queries) getConversation(ctx context.Context, query string, args ...any) (*models.Conversation, error) {
	conv, err := scanConversation(qs.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (qs *queries) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return qs.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
}

func (qs *queries) GetConversationForUpdate(ctx context.Context, id string) (*models.Conversation, error) {
	if !qs.inTx {
		return qs.GetConversation(ctx, id)
	}
	return qs.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, id)
}

func (qs *queries) GetConversationByPair(ctx context.Context, clientID, lawyerID string) (*models.Conversation, error) {
	return qs.getConversation(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE client_id = $1 AND lawyer_id = $2`,
		clientID, lawyerID)
}

// CreateConversation inserts conv. A concurrent insert of the same pair surfaces as storage.ErrDuplicate.
func (qs *queries) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO conversations (id, client_id, lawyer_id, client_name, lawyer_name, unread_by_client, unread_by_lawyer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, conv.ID, conv.ClientID, conv.LawyerID, conv.ClientName, conv.LawyerName,
		conv.UnreadByClient, conv.UnreadByLawyer, conv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (qs *queries) ListConversations(ctx context.Context, userID string, side models.Side) ([]models.Conversation, error) {
	column := "client_id"
	if side == models.SideLawyer {
		column = "lawyer_id"
	}
	rows, err := qs.q.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE `+column+` = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", userID, err)
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation for %s: %w", userID, err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations for %s: %w", userID, err)
	}
	return convs, nil
}

func unreadColumn(side models.Side) string {
	if side == models.SideClient {
		return "unread_by_client"
	}
	return "unread_by_lawyer"
}

func (qs *queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := qs.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (qs *queries) IncrementUnread(ctx context.Context, id string, side models.Side) error {
	col := unreadColumn(side)
	if err := qs.execOne(ctx, `UPDATE conversations SET `+col+` = `+col+` + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment %s for %s: %w", col, id, err)
	}
	return nil
}

func (qs *queries) ResetUnread(ctx context.Context, id string, side models.Side) error {
	col := unreadColumn(side)
	if err := qs.execOne(ctx, `UPDATE conversations SET `+col+` = 0 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reset %s for %s: %w", col, id, err)
	}
	return nil
}

func (qs *queries) UpdateSummary(ctx context.Context, id, text string, at time.Time) error {
	err := qs.execOne(ctx, `UPDATE conversations SET last_message = $2, last_message_at = $3 WHERE id = $1`, id, text, at)
	if err != nil {
		return fmt.Errorf("update summary for %s: %w", id, err)
	}
	return nil
}

func (qs *queries) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_role, sender_name, content, timestamp, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.ConversationID, msg.SenderID, string(msg.SenderRole), msg.SenderName, msg.Content, msg.Timestamp, msg.Read)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", msg.ConversationID, err)
	}
	return nil
}

func (qs *queries) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error) {
	if offset < 0 {
		offset = 0
	}
	var limitArg any // NULL means no limit
	if limit > 0 {
		limitArg = limit
	}
	rows, err := qs.q.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_role, sender_name, content, timestamp, read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, seq ASC
		OFFSET $2 LIMIT $3
	`, conversationID, offset, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &role, &msg.SenderName,
			&msg.Content, &msg.Timestamp, &msg.Read); err != nil {
			return nil, fmt.Errorf("scan message for %s: %w", conversationID, err)
		}
		msg.SenderRole = models.Role(role)
		msg.Timestamp = msg.Timestamp.UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages for %s: %w", conversationID, err)
	}
	return msgs, nil
}

func (qs *queries) MarkReadExceptSender(ctx context.Context, conversationID string, reader models.User) (int64, error) {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE conversation_id = $1 AND NOT (sender_id = $2 AND sender_role = $3) AND read = FALSE
	`, conversationID, reader.ID, string(reader.Role))
	if err != nil {
		return 0, fmt.Errorf("mark read in %s: %w", conversationID, err)
	}
	return res.RowsAffected()
}
