package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/registration"
)

// UpsertRegistration inserts or fully replaces the registration for
// r.ClientID. The stored ID and creation time win over r's.
func (s *Store) UpsertRegistration(ctx context.Context, r *registration.Registration) error {
	if r.ID.IsNil() {
		r.ID = id.NewRegistrationID()
	}
	ts := now()
	tags := r.Tags
	if tags == nil {
		tags = []uint32{}
	}

	_, err := s.mdb.NewUpdate((*registrationModel)(nil)).
		Filter(bson.M{"client_id": r.ClientID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"tags":       tags,
				"relay_url":  r.RelayURL,
				"relay_id":   r.RelayID,
				"updated_at": ts,
			},
			"$setOnInsert": bson.M{
				"_id":        r.ID.String(),
				"created_at": ts,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("history/mongo: upsert registration: %w", err)
	}

	stored, err := s.GetRegistration(ctx, r.ClientID)
	if err != nil {
		return fmt.Errorf("history/mongo: upsert registration: %w", err)
	}
	*r = *stored
	return nil
}

// GetRegistration returns the registration for clientID.
func (s *Store) GetRegistration(ctx context.Context, clientID string) (*registration.Registration, error) {
	var m registrationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"client_id": clientID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", history.ErrRegistrationNotFound, clientID)
		}
		return nil, fmt.Errorf("history/mongo: get registration: %w", err)
	}
	return fromRegistrationModel(&m)
}
