package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the History store.
var Migrations = migrate.NewGroup("history")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_history_registrations",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS history_registrations (
    id          TEXT PRIMARY KEY,
    client_id   TEXT COLLATE "C" NOT NULL UNIQUE,
    tags        BIGINT[] NOT NULL DEFAULT '{}',
    relay_url   TEXT NOT NULL,
    relay_id    TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS history_registrations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_history_messages",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS history_messages (
    id            TEXT PRIMARY KEY,
    client_id     TEXT COLLATE "C" NOT NULL,
    topic         TEXT COLLATE "C" NOT NULL,
    message_id    TEXT COLLATE "C" NOT NULL,
    message       TEXT NOT NULL,
    method        TEXT NOT NULL DEFAULT '',
    tag           BIGINT NOT NULL DEFAULT 0,
    published_at  TIMESTAMPTZ,
    ts            TIMESTAMPTZ NOT NULL,
    UNIQUE (client_id, topic, message_id)
);

CREATE INDEX IF NOT EXISTS idx_history_messages_log ON history_messages (topic, ts, message_id, client_id);
CREATE INDEX IF NOT EXISTS idx_history_messages_copies ON history_messages (topic, message_id, ts, client_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS history_messages`)
				return err
			},
		},
	)
}
