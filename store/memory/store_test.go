package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/internal/entity"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

func ctx() context.Context { return context.Background() }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(clientID, topic, payload string, at time.Duration) *message.Message {
	return &message.Message{
		ID:        id.NewMessageID(),
		ClientID:  clientID,
		Topic:     topic,
		MessageID: message.ContentID(payload),
		Message:   payload,
		Timestamp: base.Add(at),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, history.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if err := s.UpsertMessage(ctx(), msg("c", "t", "m", 0)); !errors.Is(err, history.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// registration.Store
// ──────────────────────────────────────────────────

func TestRegistration_Replace(t *testing.T) {
	s := New()

	first := &registration.Registration{
		Entity:   entity.New(),
		ID:       id.NewRegistrationID(),
		ClientID: "client-1",
		Tags:     []uint32{1, 2},
		RelayURL: "https://relay-a.example.com",
		RelayID:  "relay-a",
	}
	if err := s.UpsertRegistration(ctx(), first); err != nil {
		t.Fatal(err)
	}

	second := &registration.Registration{
		Entity:   entity.New(),
		ID:       id.NewRegistrationID(),
		ClientID: "client-1",
		Tags:     []uint32{3},
		RelayURL: "https://relay-b.example.com",
		RelayID:  "relay-b",
	}
	if err := s.UpsertRegistration(ctx(), second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRegistration(ctx(), "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RelayID != "relay-b" || got.RelayURL != "https://relay-b.example.com" {
		t.Fatalf("expected second registration, got %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != 3 {
		t.Fatalf("expected tags [3], got %v", got.Tags)
	}
	if got.ID.String() != first.ID.String() {
		t.Fatal("expected the document id to survive replacement")
	}
	if len(s.registrations) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(s.registrations))
	}
}

func TestRegistration_NotFound(t *testing.T) {
	s := New()
	if _, err := s.GetRegistration(ctx(), "missing"); !errors.Is(err, history.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// message.Store
// ──────────────────────────────────────────────────

func TestMessage_UpsertIdempotent(t *testing.T) {
	s := New()

	m1 := msg("client-1", "topic", "hello", 0)
	if err := s.UpsertMessage(ctx(), m1); err != nil {
		t.Fatal(err)
	}
	m2 := msg("client-1", "topic", "hello", time.Minute)
	m2.Method = "redelivery"
	if err := s.UpsertMessage(ctx(), m2); err != nil {
		t.Fatal(err)
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", s.Len())
	}
	got, err := s.GetOrigin(ctx(), "topic", m1.MessageID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Timestamp.Equal(m2.Timestamp) {
		t.Fatalf("expected second timestamp %v, got %v", m2.Timestamp, got.Timestamp)
	}
	if got.Method != "redelivery" {
		t.Fatalf("expected method overwritten, got %q", got.Method)
	}
	if got.ID.String() != m1.ID.String() {
		t.Fatal("expected the document id to survive overwrite")
	}

	all, err := s.ListMessages(ctx(), message.Query{Topic: "topic", Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 listed message, got %d", len(all))
	}
}

func TestMessage_SameContentDifferentClients(t *testing.T) {
	s := New()
	if err := s.UpsertMessage(ctx(), msg("client-1", "topic", "hello", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMessage(ctx(), msg("client-2", "topic", "hello", 0)); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}
}

func TestMessage_DelayedUpsertKeepsNewer(t *testing.T) {
	s := New()

	newer := msg("client-1", "topic", "x", 2*time.Second)
	newer.MessageID = "m"
	newer.Message = "second"
	older := msg("client-1", "topic", "x", time.Second)
	older.MessageID = "m"
	older.Message = "first-delayed"

	if err := s.UpsertMessage(ctx(), newer); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMessage(ctx(), older); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOrigin(ctx(), "topic", "m")
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != "second" || !got.Timestamp.Equal(newer.Timestamp) {
		t.Fatalf("older write clobbered the newer one: %q at %v", got.Message, got.Timestamp)
	}
}

func TestMessage_CopiesListedOnce(t *testing.T) {
	s := New()
	for i, row := range []struct{ client, mid string }{{"a", "m"}, {"a", "x"}, {"b", "m"}, {"a", "y"}} {
		m := msg(row.client, "topic", row.client+row.mid, time.Duration(i+1)*time.Second)
		m.MessageID = row.mid
		if err := s.UpsertMessage(ctx(), m); err != nil {
			t.Fatal(err)
		}
	}

	fwd, err := s.ListMessages(ctx(), message.Query{Topic: "topic", Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := payloads(fwd); fmt.Sprint(got) != "[am ax ay]" {
		t.Fatalf("unexpected forward log %v", got)
	}

	bwd, err := s.ListMessages(ctx(), message.Query{Topic: "topic", Direction: message.Backward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := payloads(bwd); fmt.Sprint(got) != "[ay ax am]" {
		t.Fatalf("unexpected backward log %v", got)
	}
}

func TestMessage_OriginNotFound(t *testing.T) {
	s := New()
	if err := s.UpsertMessage(ctx(), msg("client-1", "topic-a", "hello", 0)); err != nil {
		t.Fatal(err)
	}

	// Exists, but in another topic.
	if _, err := s.GetOrigin(ctx(), "topic-b", message.ContentID("hello")); !errors.Is(err, history.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMessage_ListOrderAndBounds(t *testing.T) {
	s := New()
	for i := range 5 {
		if err := s.UpsertMessage(ctx(), msg("client-1", "topic", fmt.Sprintf("m%d", i), time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	fwd, err := s.ListMessages(ctx(), message.Query{Topic: "topic", Direction: message.Forward, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(fwd) != 3 || fwd[0].Message != "m0" || fwd[2].Message != "m2" {
		t.Fatalf("unexpected forward page %v", payloads(fwd))
	}

	from := fwd[2].Position()
	back, err := s.ListMessages(ctx(), message.Query{Topic: "topic", From: &from, Direction: message.Backward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := payloads(back); fmt.Sprint(got) != "[m2 m1 m0]" {
		t.Fatalf("unexpected backward page %v", got)
	}
}

func TestMessage_TiesOrderedByMessageID(t *testing.T) {
	s := New()
	for _, p := range []string{"c", "a", "b"} {
		m := msg("client-1", "topic", p, 0)
		m.MessageID = p
		if err := s.UpsertMessage(ctx(), m); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListMessages(ctx(), message.Query{Topic: "topic", Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := payloads(all); fmt.Sprint(got) != "[a b c]" {
		t.Fatalf("expected ties ordered by message id, got %v", got)
	}
}

func payloads(msgs []*message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}
