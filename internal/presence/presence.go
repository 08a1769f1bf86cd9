// Package presence mirrors chat connections into a shared key-value store so
// other API instances can tell whether a user is online somewhere.
package presence

import (
	"context"

	"github.com/Vasu1712/legalwise-backend/internal/models"
)

// Tracker records which users hold a chat connection. Presence is owned by a
// connection id: MarkOffline only clears presence still owned by connID, so a
// closing session cannot hide the session that replaced it.
type Tracker interface {
	MarkOnline(ctx context.Context, user models.User, connID string) error
	MarkOffline(ctx context.Context, userID, connID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Nop is the Tracker used when no shared store is configured.
type Nop struct{}

func (Nop) MarkOnline(context.Context, models.User, string) error { return nil }

func (Nop) MarkOffline(context.Context, string, string) error { return nil }

func (Nop) IsOnline(context.Context, string) (bool, error) { return false, nil }
