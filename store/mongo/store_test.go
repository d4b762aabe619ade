package mongo

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

func TestLogOrder(t *testing.T) {
	fwd := logOrder(message.Forward)
	bwd := logOrder(message.Backward)
	if len(fwd) != 3 || fwd[0].Key != "ts" || fwd[1].Key != "message_id" || fwd[2].Key != "client_id" {
		t.Fatalf("unexpected forward order: %v", fwd)
	}
	for i := range bwd {
		if bwd[i].Value != -1 || fwd[i].Value != 1 {
			t.Fatalf("unexpected directions: %v / %v", fwd, bwd)
		}
	}
}

func TestCursorFilter(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000).UTC()
	p := message.Position{Timestamp: ts, MessageID: "m", ClientID: "c"}

	fwd := cursorFilter(p, message.Forward)
	if len(fwd) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(fwd))
	}
	last := fwd[2].(bson.M)
	if got := last["client_id"].(bson.M); got["$gte"] != "c" {
		t.Fatalf("expected inclusive client bound, got %v", got)
	}
	first := fwd[0].(bson.M)
	if got := first["ts"].(bson.M); got["$gt"] != ts {
		t.Fatalf("expected strict ts bound, got %v", got)
	}

	bwd := cursorFilter(p, message.Backward)
	if got := bwd[2].(bson.M)["client_id"].(bson.M); got["$lte"] != "c" {
		t.Fatalf("expected inclusive backward client bound, got %v", got)
	}
	if got := bwd[1].(bson.M)["message_id"].(bson.M); got["$lt"] != "m" {
		t.Fatalf("expected strict backward message bound, got %v", got)
	}
}

func TestListPipeline_CollapsesCopiesBeforeCursor(t *testing.T) {
	from := message.Position{Timestamp: time.UnixMilli(1).UTC(), MessageID: "m", ClientID: "c"}
	agg := listPipeline(mongodriver.New(), message.Query{Topic: "t", From: &from, Direction: message.Backward, Limit: 3})
	if agg.GetCollection() != colMessages {
		t.Fatalf("unexpected collection %q", agg.GetCollection())
	}

	var stages []string
	for _, st := range agg.GetPipeline() {
		for k := range st.(bson.M) {
			stages = append(stages, k)
		}
	}
	want := []string{"$match", "$sort", "$group", "$replaceRoot", "$match", "$sort", "$limit"}
	if len(stages) != len(want) {
		t.Fatalf("unexpected stages %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage %d: expected %s, got %v", i, want[i], stages)
		}
	}

	group := agg.GetPipeline()[2].(bson.M)["$group"].(bson.M)
	if group["_id"] != "$message_id" {
		t.Fatalf("expected grouping by message id, got %v", group)
	}
	if got := agg.GetPipeline()[6].(bson.M)["$limit"]; got != int64(3) {
		t.Fatalf("unexpected limit %v", got)
	}
}

func TestListPipeline_NoCursor(t *testing.T) {
	agg := listPipeline(mongodriver.New(), message.Query{Topic: "t", Direction: message.Forward})
	if n := len(agg.GetPipeline()); n != 5 {
		t.Fatalf("expected 5 stages without cursor or limit, got %d", n)
	}
}

func TestUpsertFilter_BoundsTimestamp(t *testing.T) {
	ts := time.UnixMilli(2000).UTC()
	f := upsertFilter(&message.Message{ClientID: "c", Topic: "t", MessageID: "m", Timestamp: ts})
	if got := f["ts"].(bson.M); got["$lte"] != ts {
		t.Fatalf("expected ts bound, got %v", f["ts"])
	}
}

func TestUpsertUpdate_PublishedAt(t *testing.T) {
	u := upsertUpdate(&message.Message{})
	if _, ok := u["$unset"]; !ok {
		t.Fatal("zero publish time should unset the field")
	}
	u = upsertUpdate(&message.Message{PublishedAt: time.UnixMilli(5)})
	if _, ok := u["$unset"]; ok {
		t.Fatal("unexpected $unset")
	}
	if _, ok := u["$set"].(bson.M)["published_at"]; !ok {
		t.Fatal("expected published_at in $set")
	}
}

func TestFromRegistrationModel(t *testing.T) {
	regID := id.NewRegistrationID()
	r, err := fromRegistrationModel(&registrationModel{ID: regID.String(), ClientID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID.String() != regID.String() || r.Tags == nil {
		t.Fatalf("unexpected registration: %+v", r)
	}

	if _, err := fromRegistrationModel(&registrationModel{ID: id.NewMessageID().String()}); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestFromMessageModel_PublishedAt(t *testing.T) {
	m, err := fromMessageModel(&messageModel{ID: id.NewMessageID().String()})
	if err != nil {
		t.Fatal(err)
	}
	if !m.PublishedAt.IsZero() {
		t.Fatal("expected zero publish time")
	}

	pub := time.UnixMilli(1_700_000_000_123)
	m, err = fromMessageModel(&messageModel{ID: id.NewMessageID().String(), PublishedAt: &pub})
	if err != nil {
		t.Fatal(err)
	}
	if !m.PublishedAt.Equal(pub) || m.PublishedAt.Location() != time.UTC {
		t.Fatalf("unexpected publish time %v", m.PublishedAt)
	}
}

// testStore connects to HISTORY_TEST_MONGO_URI or skips.
func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("HISTORY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("HISTORY_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	s, err := Connect(ctx, uri, "history_test_"+strconv.FormatInt(time.Now().UnixNano(), 36))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = s.Database().Drop(context.Background())
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIntegration_Registration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetRegistration(ctx, "missing"); !errors.Is(err, history.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}

	first := &registration.Registration{ClientID: "abc", Tags: []uint32{1}, RelayURL: "https://a", RelayID: "r1"}
	if err := s.UpsertRegistration(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &registration.Registration{ClientID: "abc", Tags: []uint32{2, 3}, RelayURL: "https://b", RelayID: "r2"}
	if err := s.UpsertRegistration(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second.ID.String() != first.ID.String() {
		t.Fatal("expected the original ID to survive replacement")
	}

	got, err := s.GetRegistration(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got.RelayID != "r2" || len(got.Tags) != 2 {
		t.Fatalf("expected replaced registration, got %+v", got)
	}
}

func TestIntegration_Messages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000).UTC()

	for i, mid := range []string{"a", "b", "c", "d"} {
		m := &message.Message{
			ClientID: "client", Topic: "t", MessageID: mid, Message: mid,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	// Overwrite moves "a" to the end of the log.
	if err := s.UpsertMessage(ctx, &message.Message{
		ClientID: "client", Topic: "t", MessageID: "a", Message: "a2",
		Timestamp: base.Add(10 * time.Millisecond),
	}); err != nil {
		t.Fatal(err)
	}

	origin, err := s.GetOrigin(ctx, "t", "c")
	if err != nil {
		t.Fatal(err)
	}
	from := origin.Position()

	fwd, err := s.ListMessages(ctx, message.Query{Topic: "t", From: &from, Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if ids := messageIDs(fwd); ids != "c,d,a" {
		t.Fatalf("unexpected forward page %s", ids)
	}

	bwd, err := s.ListMessages(ctx, message.Query{Topic: "t", From: &from, Direction: message.Backward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if ids := messageIDs(bwd); ids != "c,b" {
		t.Fatalf("unexpected backward page %s", ids)
	}

	if _, err := s.GetOrigin(ctx, "t", "zzz"); !errors.Is(err, history.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestIntegration_DelayedUpsertKeepsNewer(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, &message.Message{
		ClientID: "c", Topic: "t", MessageID: "m", Message: "second", Timestamp: time.UnixMilli(2000).UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMessage(ctx, &message.Message{
		ClientID: "c", Topic: "t", MessageID: "m", Message: "first-delayed", Timestamp: time.UnixMilli(1000).UTC(),
	}); err != nil {
		t.Fatalf("delayed upsert should be a no-op, got %v", err)
	}

	got, err := s.GetOrigin(ctx, "t", "m")
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != "second" {
		t.Fatalf("older write clobbered the newer one: %q", got.Message)
	}
}

func TestIntegration_DuplicateAcrossClientsListedOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, row := range []struct{ client, mid string }{{"a", "m"}, {"a", "x"}, {"b", "m"}, {"a", "y"}} {
		if err := s.UpsertMessage(ctx, &message.Message{
			ClientID: row.client, Topic: "t", MessageID: row.mid, Timestamp: time.UnixMilli(int64(i + 1)).UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.ListMessages(ctx, message.Query{Topic: "t", Direction: message.Forward, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if ids := messageIDs(msgs); ids != "m,x,y" {
		t.Fatalf("unexpected log %s", ids)
	}
	if msgs[0].ClientID != "a" {
		t.Fatalf("expected the earliest copy, got client %s", msgs[0].ClientID)
	}
}

func messageIDs(ms []*message.Message) string {
	out := ""
	for i, m := range ms {
		if i > 0 {
			out += ","
		}
		out += m.MessageID
	}
	return out
}
