package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame kinds delivered by the message feed.
const (
	KindSnapshot = "snapshot"
	KindChange   = "change"
)

// Change types within a KindChange frame.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// Message is one chat message as carried on the feed wire.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderUID      string    `json:"senderUid"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Event is one parsed feed frame. A snapshot frame carries the backlog in
// Messages; a change frame carries one message and its change type.
type Event struct {
	Kind     string
	Messages []Message
	Type     string
	Message  *Message
}

// ParseEvent decodes a raw feed frame.
func ParseEvent(data []byte) (*Event, error) {
	var raw struct {
		Kind     string          `json:"kind"`
		Messages []Message       `json:"messages,omitempty"`
		Type     string          `json:"type,omitempty"`
		Message  json.RawMessage `json:"message,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	ev := &Event{Kind: raw.Kind}
	switch raw.Kind {
	case KindSnapshot:
		ev.Messages = raw.Messages
	case KindChange:
		ev.Type = raw.Type
		if len(raw.Message) > 0 {
			var m Message
			if err := json.Unmarshal(raw.Message, &m); err != nil {
				return nil, fmt.Errorf("unmarshal message: %w", err)
			}
			ev.Message = &m
		}
	default:
		return nil, fmt.Errorf("unknown frame kind %q", raw.Kind)
	}
	return ev, nil
}
