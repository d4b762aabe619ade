package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/internal/entity"
	"github.com/xraph/history/registration"
)

// registrationModel is the JSON representation stored in Redis.
type registrationModel struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Tags      []uint32  `json:"tags"`
	RelayURL  string    `json:"relay_url"`
	RelayID   string    `json:"relay_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRegistrationModel(r *registration.Registration) *registrationModel {
	tags := r.Tags
	if tags == nil {
		tags = []uint32{}
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
	return &registration.Registration{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       regID,
		ClientID: m.ClientID,
		Tags:     m.Tags,
		RelayURL: m.RelayURL,
		RelayID:  m.RelayID,
	}, nil
}

// UpsertRegistration inserts or fully replaces the registration for
// r.ClientID, keeping the stored ID and creation time.
func (s *Store) UpsertRegistration(ctx context.Context, r *registration.Registration) error {
	key := entityKey(prefixRegistration, r.ClientID)

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		var existing registrationModel
		err := getWatched(ctx, tx, key, &existing)
		switch {
		case err == nil:
			stored, perr := fromRegistrationModel(&existing)
			if perr != nil {
				return perr
			}
			r.ID = stored.ID
			r.CreatedAt = stored.CreatedAt
			r.UpdatedAt = now()
		case isRedisNil(err):
			if r.ID.IsNil() {
				r.ID = id.NewRegistrationID()
			}
			if r.CreatedAt.IsZero() {
				r.Entity = entity.New()
			}
		default:
			return err
		}

		raw, err := json.Marshal(toRegistrationModel(r))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("history/redis: upsert registration: %w", err)
	}
	return nil
}

// GetRegistration returns the registration for clientID.
func (s *Store) GetRegistration(ctx context.Context, clientID string) (*registration.Registration, error) {
	var m registrationModel
	if err := s.getEntity(ctx, entityKey(prefixRegistration, clientID), &m); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", history.ErrRegistrationNotFound, clientID)
		}
		return nil, fmt.Errorf("history/redis: get registration: %w", err)
	}
	return fromRegistrationModel(&m)
}
