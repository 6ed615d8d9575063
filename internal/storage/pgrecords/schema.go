package pgrecords

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS records (
  id BIGSERIAL PRIMARY KEY,
  kind TEXT NOT NULL,
  external_id TEXT NOT NULL,
  payload JSONB NULL,
  payload_hash TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  view JSONB NULL,
  due_at TIMESTAMPTZ NULL,
  completed_at TIMESTAMPTZ NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (kind, external_id)
)`,
		`ALTER TABLE records ADD COLUMN IF NOT EXISTS completed_at TIMESTAMPTZ NULL`,
		`CREATE INDEX IF NOT EXISTS idx_records_next_check_at ON records(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind_status ON records(kind, status)`,
		`CREATE INDEX IF NOT EXISTS idx_records_due_at ON records(due_at) WHERE due_at IS NOT NULL`,
		`
CREATE TABLE IF NOT EXISTS status_events (
  id BIGSERIAL PRIMARY KEY,
  record_id BIGINT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  out_of_order BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_record_id_event_time ON status_events(record_id, event_time DESC)`,
		// A backend re-fetch replays the whole log; identical entries are stored once.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_status_events_dedup ON status_events(record_id, status_raw, event_time, description)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
