package postgres

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

	ID        string    `grove:"id,pk"`
	ClientID  string    `grove:"client_id,unique"`
	Tags      []int64   `grove:"tags,type:bigint[]"`
	RelayURL  string    `grove:"relay_url"`
	RelayID   string    `grove:"relay_id"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toRegistrationModel(r *registration.Registration) *registrationModel {
	tags := make([]int64, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, int64(t))
	}
	return &registrationModel{
		ID:        r.ID.String(),
		ClientID:  r.ClientID,
		Tags:      tags,
		RelayURL:  r.RelayURL,
		RelayID:   r.RelayID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromRegistrationModel(m *registrationModel) (*registration.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.ID, err)
	}
	tags := make([]uint32, 0, len(m.Tags))
	for _, t := range m.Tags {
		tags = append(tags, uint32(t))
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

	ID          string     `grove:"id,pk"`
	ClientID    string     `grove:"client_id"`
	Topic       string     `grove:"topic"`
	MessageID   string     `grove:"message_id"`
	Message     string     `grove:"message"`
	Method      string     `grove:"method"`
	Tag         int64      `grove:"tag"`
	PublishedAt *time.Time `grove:"published_at"`
	Timestamp   time.Time  `grove:"ts"`
}

func toMessageModel(m *message.Message) *messageModel {
	var published *time.Time
	if !m.PublishedAt.IsZero() {
		t := m.PublishedAt
		published = &t
	}
	return &messageModel{
		ID:          m.ID.String(),
		ClientID:    m.ClientID,
		Topic:       m.Topic,
		MessageID:   m.MessageID,
		Message:     m.Message,
		Method:      m.Method,
		Tag:         int64(m.Tag),
		PublishedAt: published,
		Timestamp:   m.Timestamp,
	}
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
		Tag:       uint32(m.Tag),
		Timestamp: m.Timestamp.UTC(),
	}
	if m.PublishedAt != nil {
		out.PublishedAt = m.PublishedAt.UTC()
	}
	return out, nil
}
