package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/history/id"
	"github.com/xraph/history/internal/entity"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

// --- Registration models ---

type registrationModel struct {
	grove.BaseModel `grove:"table:history_registrations"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	ClientID  string    `grove:"client_id"  bson:"client_id"`
	Tags      []uint32  `grove:"tags"       bson:"tags"`
	RelayURL  string    `grove:"relay_url"  bson:"relay_url"`
	RelayID   string    `grove:"relay_id"   bson:"relay_id"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func fromRegistrationModel(m *registrationModel) (*registration.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.ID, err)
	}
	tags := m.Tags
	if tags == nil {
		tags = []uint32{}
	}
	return &registration.Registration{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:       regID,
		ClientID: m.ClientID,
		Tags:     tags,
		RelayURL: m.RelayURL,
		RelayID:  m.RelayID,
	}, nil
}

// --- Message models ---

type messageModel struct {
	grove.BaseModel `grove:"table:history_messages"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	ClientID    string     `grove:"client_id"    bson:"client_id"`
	Topic       string     `grove:"topic"        bson:"topic"`
	MessageID   string     `grove:"message_id"   bson:"message_id"`
	Message     string     `grove:"message"      bson:"message"`
	Method      string     `grove:"method"       bson:"method,omitempty"`
	Tag         uint32     `grove:"tag"          bson:"tag"`
	PublishedAt *time.Time `grove:"published_at" bson:"published_at,omitempty"`
	Timestamp   time.Time  `grove:"ts"           bson:"ts"`
}

func fromMessageModel(m *messageModel) (*message.Message, error) {
	msgID, err := id.ParseMessageID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message ID %q: %w", m.ID, err)
	}
	out := &message.Message{
		ID:        msgID,
		ClientID:  m.ClientID,
		Topic:     m.Topic,
		MessageID: m.MessageID,
		Message:   m.Message,
		Method:    m.Method,
		Tag:       m.Tag,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.PublishedAt != nil {
		out.PublishedAt = m.PublishedAt.UTC()
	}
	return out, nil
}

func fromMessageModels(ms []messageModel) ([]*message.Message, error) {
	out := make([]*message.Message, 0, len(ms))
	for i := range ms {
		m, err := fromMessageModel(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
