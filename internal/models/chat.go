package models

import (
	"fmt"
	"time"
)

// Role is the closed set of account kinds that can authenticate against the API.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a raw role claim into a Role, rejecting anything outside the known set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleLawyer, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Counterpart returns the role a user of role r chats with. Admins have no counterpart.
func (r Role) Counterpart() (Role, bool) {
	switch r {
	case RoleClient:
		return RoleLawyer, true
	case RoleLawyer:
		return RoleClient, true
	default:
		return "", false
	}
}

// User is the read-only identity snapshot attached to a request or chat connection.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

// Side selects one of the two unread counters of a Conversation.
type Side string

const (
	SideClient Side = "client"
	SideLawyer Side = "lawyer"
)

// Conversation is the single chat thread between one client and one lawyer.
// The participant names are captured when the conversation is created and are not re-synced.
type Conversation struct {
	ID             string     `json:"id"`
	ClientID       string     `json:"clientId"`
	LawyerID       string     `json:"lawyerId"`
	ClientName     string     `json:"clientName"`
	LawyerName     string     `json:"lawyerName"`
	LastMessage    *string    `json:"lastMessage"`
	LastMessageAt  *time.Time `json:"lastMessageAt"`
	UnreadByClient int        `json:"unreadByClient"`
	UnreadByLawyer int        `json:"unreadByLawyer"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// HasParty reports whether user is the conversation's client or its lawyer.
// Client and lawyer ids come from separate directories and may collide, so
// the id is only compared against the slot for the user's role.
func (c *Conversation) HasParty(user User) bool {
	if user.ID == "" {
		return false
	}
	switch user.Role {
	case RoleClient:
		return user.ID == c.ClientID
	case RoleLawyer:
		return user.ID == c.LawyerID
	default:
		return false
	}
}

// SideOf returns the counter side owned by user. The caller must have checked HasParty.
func (c *Conversation) SideOf(user User) Side {
	if user.Role == RoleLawyer {
		return SideLawyer
	}
	return SideClient
}

// Counterpart returns the id of the other party. The caller must have checked HasParty.
func (c *Conversation) Counterpart(user User) string {
	if user.Role == RoleLawyer {
		return c.ClientID
	}
	return c.LawyerID
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideClient {
		return SideLawyer
	}
	return SideClient
}

// Message is one chat message. Only Read ever changes after creation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderRole     Role      `json:"senderRole"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
}
