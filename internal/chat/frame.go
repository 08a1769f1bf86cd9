package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frame types carried on the chat socket.
const (
	FrameMessage      = "message"
	FrameTyping       = "typing"
	FrameError        = "error"
	FrameAnnouncement = "announcement"
)

// InboundFrame is one JSON frame sent by a client. Timestamp is informational only.
type InboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content,omitempty"`
	IsTyping       *bool  `json:"isTyping,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// DecodeFrame parses and validates raw. Any problem is reported as ErrMalformedFrame.
func DecodeFrame(raw []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.ConversationID == "" {
		return f, fmt.Errorf("%w: conversationId is required", ErrMalformedFrame)
	}
	switch f.Type {
	case FrameMessage:
		if strings.TrimSpace(f.Content) == "" {
			return f, fmt.Errorf("%w: content is required", ErrMalformedFrame)
		}
	case FrameTyping:
		if f.IsTyping == nil {
			return f, fmt.Errorf("%w: isTyping is required", ErrMalformedFrame)
		}
	default:
		return f, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return f, nil
}

// MessageFrame is delivered to both parties when a message is sent.
type MessageFrame struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderRole     string    `json:"senderRole"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// TypingFrame is delivered to the counterpart only.
type TypingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ErrorFrame reports a failed frame back to its sender.
type ErrorFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Code           string `json:"code"`
	Error          string `json:"error"`
}

// AnnouncementFrame is broadcast to every connected user.
type AnnouncementFrame struct {
	Type       string    `json:"type"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewErrorFrame renders err for the sender of a frame on conversationID.
// Store failures are reported without their driver detail.
func NewErrorFrame(conversationID string, err error) ErrorFrame {
	msg := err.Error()
	if errors.Is(err, ErrTransientStore) {
		msg = ErrTransientStore.Error()
	}
	return ErrorFrame{
		Type:           FrameError,
		ConversationID: conversationID,
		Code:           Code(err),
		Error:          msg,
	}
}
