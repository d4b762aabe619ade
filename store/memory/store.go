// Package memory provides an in-memory Store implementation for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/history"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
	historystore "github.com/xraph/history/store"
)

// compile-time interface check.
var _ historystore.Store = (*Store)(nil)

type messageKey struct {
	clientID  string
	topic     string
	messageID string
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	registrations map[string]*registration.Registration // keyed by client ID
	messages      map[messageKey]*message.Message
	topics        map[string][]*message.Message // kept sorted by Position

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		registrations: make(map[string]*registration.Registration),
		messages:      make(map[messageKey]*message.Message),
		topics:        make(map[string][]*message.Message),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return history.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// registration.Store
// ──────────────────────────────────────────────────

// UpsertRegistration inserts or replaces the registration for r.ClientID.
func (s *Store) UpsertRegistration(_ context.Context, r *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return history.ErrStoreClosed
	}

	if existing, ok := s.registrations[r.ClientID]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		r.Touch()
	}
	cp := *r
	cp.Tags = slices.Clone(r.Tags)
	s.registrations[r.ClientID] = &cp
	return nil
}

// GetRegistration returns the registration for clientID.
func (s *Store) GetRegistration(_ context.Context, clientID string) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, history.ErrStoreClosed
	}

	r, ok := s.registrations[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", history.ErrRegistrationNotFound, clientID)
	}
	cp := *r
	cp.Tags = slices.Clone(r.Tags)
	return &cp, nil
}

// ──────────────────────────────────────────────────
// message.Store
// ──────────────────────────────────────────────────

// UpsertMessage inserts or overwrites the message with the same
// (ClientID, Topic, MessageID). A stored message with a later timestamp is
// kept.
func (s *Store) UpsertMessage(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return history.ErrStoreClosed
	}

	key := messageKey{clientID: m.ClientID, topic: m.Topic, messageID: m.MessageID}
	cp := *m
	if existing, ok := s.messages[key]; ok {
		if existing.Timestamp.After(cp.Timestamp) {
			return nil
		}
		cp.ID = existing.ID
		s.topics[m.Topic] = slices.DeleteFunc(s.topics[m.Topic], func(x *message.Message) bool {
			return x == existing
		})
	}
	s.messages[key] = &cp

	log := s.topics[m.Topic]
	i, _ := slices.BinarySearchFunc(log, cp.Position(), func(x *message.Message, p message.Position) int {
		return x.Position().Compare(p)
	})
	s.topics[m.Topic] = slices.Insert(log, i, &cp)
	return nil
}

// GetOrigin returns the first message in log order with the given topic and
// message id.
func (s *Store) GetOrigin(_ context.Context, topic, messageID string) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, history.ErrStoreClosed
	}

	for _, m := range s.topics[topic] {
		if m.MessageID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", history.ErrMessageNotFound, topic, messageID)
}

// ListMessages returns up to q.Limit messages of q.Topic in q.Direction
// order, one per message id: only the earliest copy of a message delivered
// to several clients is listed.
func (s *Store) ListMessages(_ context.Context, q message.Query) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, history.ErrStoreClosed
	}

	log := s.topics[q.Topic]
	first := make(map[string]*message.Message, len(log))
	for _, m := range log {
		if _, ok := first[m.MessageID]; !ok {
			first[m.MessageID] = m
		}
	}

	result := make([]*message.Message, 0, min(q.Limit, len(first)))

	appendCopy := func(m *message.Message) bool {
		if q.Limit > 0 && len(result) >= q.Limit {
			return false
		}
		if first[m.MessageID] != m {
			return true
		}
		cp := *m
		result = append(result, &cp)
		return true
	}

	if q.Direction == message.Backward {
		for i := len(log) - 1; i >= 0; i-- {
			if q.From != nil && log[i].Position().Compare(*q.From) > 0 {
				continue
			}
			if !appendCopy(log[i]) {
				break
			}
		}
		return result, nil
	}

	for _, m := range log {
		if q.From != nil && m.Position().Compare(*q.From) < 0 {
			continue
		}
		if !appendCopy(m) {
			break
		}
	}
	return result, nil
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
