// Package message defines the stored webhook message log and the cursor
// paginator over it.
package message

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/xraph/history/id"
)

// Message is one delivered event, unique per (ClientID, Topic, MessageID).
type Message struct {
	ID          id.ID     `json:"id"`
	ClientID    string    `json:"clientId"`
	Topic       string    `json:"topic"`
	MessageID   string    `json:"messageId"`
	Message     string    `json:"message"`
	Method      string    `json:"method,omitempty"`
	Tag         uint32    `json:"tag"`
	PublishedAt time.Time `json:"publishedAt,omitzero"`
	Timestamp   time.Time `json:"timestamp"`
}

// ContentID returns the content-derived id of a message payload: the
// lowercase hex SHA-256 digest.
func ContentID(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Position returns the message's place in the log ordering.
func (m *Message) Position() Position {
	return Position{
		Timestamp: m.Timestamp,
		MessageID: m.MessageID,
		ClientID:  m.ClientID,
	}
}

// Position is the total ordering key of the log within a topic: timestamp,
// then message id, then client id.
type Position struct {
	Timestamp time.Time
	MessageID string
	ClientID  string
}

// Compare returns -1, 0 or +1 as p sorts before, equal to or after o.
func (p Position) Compare(o Position) int {
	if c := p.Timestamp.Compare(o.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(p.MessageID, o.MessageID); c != 0 {
		return c
	}
	return cmp.Compare(p.ClientID, o.ClientID)
}

// Direction selects the traversal order of a page.
type Direction string

const (
	// Forward walks from oldest to newest.
	Forward Direction = "forward"
	// Backward walks from newest to oldest.
	Backward Direction = "backward"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// Query selects a slice of a topic's log.
type Query struct {
	Topic string

	// From, when set, is an inclusive bound: Forward returns positions >= From,
	// Backward returns positions <= From.
	From *Position

	Direction Direction
	Limit     int
}

// Store defines the persistence contract for the message log.
type Store interface {
	// UpsertMessage inserts m or overwrites the message with the same
	// (ClientID, Topic, MessageID), replacing its timestamp, method, payload,
	// tag and publish time. A stored message with a later timestamp is kept.
	UpsertMessage(ctx context.Context, m *Message) error

	// GetOrigin returns the first message in log order matching topic and
	// messageID, or an error wrapping history.ErrMessageNotFound.
	GetOrigin(ctx context.Context, topic, messageID string) (*Message, error)

	// ListMessages returns up to q.Limit messages of q.Topic in q.Direction
	// order, starting at q.From when set. A message id stored for several
	// clients is listed once, at the position GetOrigin returns for it.
	ListMessages(ctx context.Context, q Query) ([]*Message, error)
}
