package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/history"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

// unopened builds queries without a connection.
func unopened() *Store {
	return &Store{pg: pgdriver.New()}
}

func TestListQuery_Forward(t *testing.T) {
	var models []messageModel
	query, args, err := unopened().listQuery(&models, message.Query{Topic: "t", Direction: message.Forward}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(query, `FROM "history_messages" WHERE topic = $1`) {
		t.Fatalf("unexpected FROM/WHERE in %q", query)
	}
	if !strings.Contains(query, "NOT EXISTS") {
		t.Fatalf("expected the first-copy filter in %q", query)
	}
	if strings.Contains(query, "LIMIT") || strings.Contains(query, "(ts, message_id, client_id)") {
		t.Fatalf("unexpected clauses in %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY ts ASC, message_id ASC, client_id ASC") {
		t.Fatalf("expected forward order, got %q", query)
	}
	if len(args) != 1 || args[0] != "t" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestListQuery_BackwardCursor(t *testing.T) {
	var models []messageModel
	from := message.Position{Timestamp: time.UnixMilli(1_700_000_000_000).UTC(), MessageID: "m", ClientID: "c"}
	query, args, err := unopened().listQuery(&models, message.Query{
		Topic: "t", From: &from, Direction: message.Backward, Limit: 2,
	}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(query, "(ts, message_id, client_id) <= ($2, $3, $4)") {
		t.Fatalf("expected backward cursor bound in %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY ts DESC, message_id DESC, client_id DESC LIMIT 2") {
		t.Fatalf("unexpected tail in %q", query)
	}
	if len(args) != 4 || args[2] != "m" || args[3] != "c" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestOriginQuery(t *testing.T) {
	query, args, err := unopened().originQuery(new(messageModel), "t", "mid").Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(query, "WHERE topic = $1 AND message_id = $2") ||
		!strings.HasSuffix(query, "ORDER BY ts ASC, message_id ASC, client_id ASC LIMIT 1") {
		t.Fatalf("unexpected origin query %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
}

func TestUpsertMessageSQL_GuardsOnTimestamp(t *testing.T) {
	if !strings.HasSuffix(strings.TrimSpace(upsertMessageSQL), "WHERE history_messages.ts <= EXCLUDED.ts") {
		t.Fatalf("overwrite is not guarded on timestamp:\n%s", upsertMessageSQL)
	}
	args := upsertMessageArgs(toMessageModel(&message.Message{ClientID: "c", Topic: "t", MessageID: "m"}))
	if got := strings.Count(upsertMessageSQL, "$"); got != len(args) {
		t.Fatalf("%d placeholders for %d args", got, len(args))
	}
}

func TestMessageModel_PublishedAt(t *testing.T) {
	m := toMessageModel(&message.Message{})
	if m.PublishedAt != nil {
		t.Fatal("zero publish time should be stored as NULL")
	}
	pub := time.UnixMilli(1_700_000_000_000).UTC()
	m = toMessageModel(&message.Message{PublishedAt: pub})
	if m.PublishedAt == nil || !m.PublishedAt.Equal(pub) {
		t.Fatalf("unexpected publish time %v", m.PublishedAt)
	}
}

func TestRegistrationModel_Tags(t *testing.T) {
	r := &registration.Registration{ClientID: "abc", Tags: []uint32{4002, 4004}}
	m := toRegistrationModel(r)
	if len(m.Tags) != 2 || m.Tags[0] != 4002 || m.Tags[1] != 4004 {
		t.Fatalf("unexpected tags %v", m.Tags)
	}
}

// ──────────────────────────────────────────────────
// Integration
// ──────────────────────────────────────────────────

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("HISTORY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HISTORY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestIntegration_Migrate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	// Running again is a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_Registration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client := "it-" + time.Now().Format("150405.000000000")

	r := &registration.Registration{ClientID: client, Tags: []uint32{1}, RelayURL: "https://r", RelayID: "rid"}
	if err := s.UpsertRegistration(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first := r.ID

	again := &registration.Registration{ClientID: client, Tags: []uint32{2, 3}, RelayURL: "https://r2", RelayID: "rid2"}
	if err := s.UpsertRegistration(ctx, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID.String() != first.String() {
		t.Fatalf("expected stored ID %s, got %s", first, again.ID)
	}

	got, err := s.GetRegistration(ctx, client)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 2 || got.RelayID != "rid2" {
		t.Fatalf("unexpected registration %+v", got)
	}

	if _, err := s.GetRegistration(ctx, client+"-missing"); !errors.Is(err, history.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestIntegration_DelayedUpsertKeepsNewer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := "it-" + time.Now().Format("150405.000000000")

	newer := &message.Message{ClientID: "c", Topic: topic, MessageID: "m", Message: "second", Timestamp: time.UnixMilli(2000).UTC()}
	older := &message.Message{ClientID: "c", Topic: topic, MessageID: "m", Message: "first-delayed", Timestamp: time.UnixMilli(1000).UTC()}
	if err := s.UpsertMessage(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMessage(ctx, older); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOrigin(ctx, topic, "m")
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != "second" {
		t.Fatalf("older write clobbered the newer one: %q", got.Message)
	}
}

func TestIntegration_DuplicateAcrossClientsListedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := "it-" + time.Now().Format("150405.000000000")

	for i, row := range []struct{ client, mid string }{{"a", "m"}, {"a", "x"}, {"b", "m"}, {"a", "y"}} {
		m := &message.Message{ClientID: row.client, Topic: topic, MessageID: row.mid, Timestamp: time.UnixMilli(int64(i + 1)).UTC()}
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.ListMessages(ctx, message.Query{Topic: topic, Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ClientID+"/"+m.MessageID)
	}
	if strings.Join(ids, ",") != "a/m,a/x,a/y" {
		t.Fatalf("unexpected log %v", ids)
	}
}
