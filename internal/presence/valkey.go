package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/legalwise-backend/internal/models"
)

// deleteIfOwner removes the presence key only while it still names the caller's connection.
var deleteIfOwner = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ValkeyTracker stores one expiring key per online user. The value is the id
// of the connection that owns it.
type ValkeyTracker struct {
	client valkey.Client
	ttl    time.Duration
}

var _ Tracker = (*ValkeyTracker)(nil)

// NewValkeyTracker connects to the Valkey server at addr.
func NewValkeyTracker(addr string, ttl time.Duration) (*ValkeyTracker, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", addr, err)
	}
	return &ValkeyTracker{client: client, ttl: ttl}, nil
}

// TTL is how long a presence key lives without being refreshed.
func (t *ValkeyTracker) TTL() time.Duration {
	return t.ttl
}

func presenceKey(userID string) string {
	return "chat:presence:" + userID
}

// MarkOnline sets or refreshes the user's presence key on behalf of connID.
func (t *ValkeyTracker) MarkOnline(ctx context.Context, user models.User, connID string) error {
	seconds := int64(t.ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	cmd := t.client.B().Set().Key(presenceKey(user.ID)).Value(connID).ExSeconds(seconds).Build()
	return t.client.Do(ctx, cmd).Error()
}

// MarkOffline removes the user's presence key if connID still owns it.
func (t *ValkeyTracker) MarkOffline(ctx context.Context, userID, connID string) error {
	return deleteIfOwner.Exec(ctx, t.client, []string{presenceKey(userID)}, []string{connID}).Error()
}

// IsOnline reports whether any instance holds a live connection for userID.
func (t *ValkeyTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Do(ctx, t.client.B().Exists().Key(presenceKey(userID)).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the Valkey connection.
func (t *ValkeyTracker) Ping(ctx context.Context) error {
	return t.client.Do(ctx, t.client.B().Ping().Build()).Error()
}

// Close closes the Valkey client.
func (t *ValkeyTracker) Close() {
	t.client.Close()
}
