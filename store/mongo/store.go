// Package mongo implements store.Store on MongoDB via the grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/history/store"
)

// Collection name constants.
const (
	colRegistrations = "history_registrations"
	colMessages      = "history_messages"
)

// DefaultDatabase is the database used when none is given.
const DefaultDatabase = "history"

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Connect dials uri, selects database and returns a store that owns the
// connection.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, mongodriver.WithDatabase(database)); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("history/mongo: connect: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("history/mongo: open grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Database returns the underlying mongo database.
func (s *Store) Database() *mongo.Database { return s.mdb.Database() }

// Migrate creates indexes for all history collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("history/mongo: migrate %s indexes: %w", col, err)
		}
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all history collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colRegistrations: {
			{
				Keys:    bson.D{{Key: "client_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colMessages: {
			{
				Keys: bson.D{
					{Key: "client_id", Value: 1},
					{Key: "topic", Value: 1},
					{Key: "message_id", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "topic", Value: 1},
					{Key: "ts", Value: 1},
					{Key: "message_id", Value: 1},
					{Key: "client_id", Value: 1},
				},
			},
			{
				Keys: bson.D{
					{Key: "topic", Value: 1},
					{Key: "message_id", Value: 1},
					{Key: "ts", Value: 1},
					{Key: "client_id", Value: 1},
				},
			},
		},
	}
}
