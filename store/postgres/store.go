// Package postgres implements store.Store on PostgreSQL via the grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the "pg" migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
	historystore "github.com/xraph/history/store"
)

// compile-time interface check
var _ historystore.Store = (*Store)(nil)

// logOrder sorts by the log position in each direction.
var logOrder = map[message.Direction]string{
	message.Forward:  "ts ASC, message_id ASC, client_id ASC",
	message.Backward: "ts DESC, message_id DESC, client_id DESC",
}

// firstCopy keeps only the earliest row of each message id in a topic, so
// a message delivered to several clients appears once in the log.
const firstCopy = `NOT EXISTS (
	SELECT 1 FROM history_messages e
	WHERE e.topic = history_messages.topic
	  AND e.message_id = history_messages.message_id
	  AND (e.ts, e.client_id) < (history_messages.ts, history_messages.client_id))`

// upsertMessageSQL overwrites a stored message only when the incoming write
// is at least as recent, so a reordered older delivery never wins.
const upsertMessageSQL = `
INSERT INTO history_messages (id, client_id, topic, message_id, message, method, tag, published_at, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (client_id, topic, message_id) DO UPDATE SET
	message = EXCLUDED.message,
	method = EXCLUDED.method,
	tag = EXCLUDED.tag,
	published_at = EXCLUDED.published_at,
	ts = EXCLUDED.ts
WHERE history_messages.ts <= EXCLUDED.ts`

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to databaseURL and wraps the pool in a grove handle.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, databaseURL,
		driver.WithPoolSize(25),
		driver.WithMaxConnLifetime(5*time.Minute),
	); err != nil {
		return nil, fmt.Errorf("history/postgres: open database: %w", err)
	}

	db, err := grove.Open(pg)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("history/postgres: open grove: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history/postgres: ping database: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: create migration executor: %v", history.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %v", history.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Registration Store ====================

// UpsertRegistration inserts or fully replaces the registration for
// r.ClientID. The stored ID and creation time win over r's.
func (s *Store) UpsertRegistration(ctx context.Context, r *registration.Registration) error {
	if r.ID.IsNil() {
		r.ID = id.NewRegistrationID()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	var (
		rawID     string
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.pg.NewInsert(toRegistrationModel(r)).
		OnConflict("(client_id) DO UPDATE").
		Set("tags = EXCLUDED.tags").
		Set("relay_url = EXCLUDED.relay_url").
		Set("relay_id = EXCLUDED.relay_id").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id", "created_at", "updated_at").
		Scan(ctx, &rawID, &createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("history/postgres: upsert registration: %w", err)
	}

	regID, err := id.ParseRegistrationID(rawID)
	if err != nil {
		return fmt.Errorf("history/postgres: upsert registration: %w", err)
	}
	r.ID = regID
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	return nil
}

// GetRegistration returns the registration for clientID.
func (s *Store) GetRegistration(ctx context.Context, clientID string) (*registration.Registration, error) {
	m := new(registrationModel)
	err := s.pg.NewSelect(m).
		Where("client_id = ?", clientID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", history.ErrRegistrationNotFound, clientID)
		}
		return nil, fmt.Errorf("history/postgres: get registration: %w", err)
	}
	r, err := fromRegistrationModel(m)
	if err != nil {
		return nil, fmt.Errorf("history/postgres: get registration: %w", err)
	}
	return r, nil
}

// ==================== Message Store ====================

// UpsertMessage inserts or overwrites the message with the same
// (ClientID, Topic, MessageID). A stored row with a later timestamp is kept.
func (s *Store) UpsertMessage(ctx context.Context, m *message.Message) error {
	if m.ID.IsNil() {
		m.ID = id.NewMessageID()
	}
	_, err := s.pg.NewRaw(upsertMessageSQL, upsertMessageArgs(toMessageModel(m))...).Exec(ctx)
	if err != nil {
		return fmt.Errorf("history/postgres: upsert message: %w", err)
	}
	return nil
}

func upsertMessageArgs(m *messageModel) []any {
	return []any{
		m.ID, m.ClientID, m.Topic, m.MessageID, m.Message, m.Method,
		m.Tag, m.PublishedAt, m.Timestamp,
	}
}

// GetOrigin returns the first message in log order with the given topic and
// message id.
func (s *Store) GetOrigin(ctx context.Context, topic, messageID string) (*message.Message, error) {
	m := new(messageModel)
	err := s.originQuery(m, topic, messageID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s/%s", history.ErrMessageNotFound, topic, messageID)
		}
		return nil, fmt.Errorf("history/postgres: get origin: %w", err)
	}
	out, err := fromMessageModel(m)
	if err != nil {
		return nil, fmt.Errorf("history/postgres: get origin: %w", err)
	}
	return out, nil
}

func (s *Store) originQuery(m *messageModel, topic, messageID string) *pgdriver.SelectQuery {
	return s.pg.NewSelect(m).
		Where("topic = ?", topic).
		Where("message_id = ?", messageID).
		OrderExpr(logOrder[message.Forward]).
		Limit(1)
}

// ListMessages returns up to q.Limit messages of q.Topic in q.Direction
// order, one row per message id.
func (s *Store) ListMessages(ctx context.Context, q message.Query) ([]*message.Message, error) {
	var models []messageModel
	if err := s.listQuery(&models, q).Scan(ctx); err != nil {
		return nil, fmt.Errorf("history/postgres: list messages: %w", err)
	}

	out := make([]*message.Message, 0, len(models))
	for i := range models {
		m, err := fromMessageModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("history/postgres: list messages: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// listQuery builds the page query. The cursor bound is a row comparison so
// the log index serves it.
func (s *Store) listQuery(models *[]messageModel, q message.Query) *pgdriver.SelectQuery {
	dir := q.Direction
	if dir != message.Backward {
		dir = message.Forward
	}

	sel := s.pg.NewSelect(models).
		Where("topic = ?", q.Topic).
		Where(firstCopy)
	if q.From != nil {
		op := ">="
		if dir == message.Backward {
			op = "<="
		}
		sel = sel.Where("(ts, message_id, client_id) "+op+" (?, ?, ?)",
			q.From.Timestamp, q.From.MessageID, q.From.ClientID)
	}
	sel = sel.OrderExpr(logOrder[dir])
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	return sel
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, grove.ErrNoRows)
}
