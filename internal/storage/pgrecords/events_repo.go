package pgrecords

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/models"
)

// RecordUpdate is the result of one refresh attempt. A non-empty Error
// records a failed fetch and keeps the previous derived state.
type RecordUpdate struct {
	RecordID uint64

	CheckedAt time.Time

	Payload     json.RawMessage
	PayloadHash string

	Status      string
	StatusRaw   string
	View        *models.View
	DueAt       *time.Time
	CompletedAt *time.Time

	NextCheckAt time.Time

	Events []*models.StatusEvent

	Error *string
}

func (s *Storage) ListStatusEvents(ctx context.Context, recordID uint64, limit, offset int) ([]*models.StatusEvent, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, record_id, status, status_raw,
  event_time, description, out_of_order, created_at
FROM status_events
WHERE record_id = $1
ORDER BY event_time DESC, id DESC
LIMIT $2 OFFSET $3
`, recordID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.StatusEvent
	for rows.Next() {
		var (
			e    models.StatusEvent
			desc string
		)
		if err := rows.Scan(
			&e.ID, &e.RecordID, &e.Status, &e.StatusRaw,
			&e.EventTime, &desc, &e.OutOfOrder, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if desc != "" {
			e.Description = &desc
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ApplyRecordUpdate(ctx context.Context, upd RecordUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		ct, err := tx.Exec(ctx, `
UPDATE records
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.RecordID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update record (error)")
		}
		if ct.RowsAffected() == 0 {
			return models.ErrRecordNotFound
		}
	} else {
		var view []byte
		if upd.View != nil {
			if view, err = json.Marshal(upd.View); err != nil {
				return errors.Wrap(err, "encode view")
			}
		}
		var payload []byte
		if len(upd.Payload) > 0 {
			payload = upd.Payload
		}

		ct, err := tx.Exec(ctx, `
UPDATE records
SET
  payload = $3,
  payload_hash = $4,
  status = $5,
  status_raw = $6,
  view = $7,
  due_at = $8,
  completed_at = $10,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $9,
  updated_at = now()
WHERE id = $1
`, upd.RecordID, upd.CheckedAt.UTC(), payload, upd.PayloadHash,
			upd.Status, upd.StatusRaw, view, upd.DueAt, upd.NextCheckAt.UTC(), upd.CompletedAt)
		if err != nil {
			return errors.Wrap(err, "update record (ok)")
		}
		if ct.RowsAffected() == 0 {
			return models.ErrRecordNotFound
		}

		for _, e := range upd.Events {
			desc := ""
			if e.Description != nil {
				desc = *e.Description
			}
			_, err := tx.Exec(ctx, `
INSERT INTO status_events (
  record_id, status, status_raw, event_time, description, out_of_order, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (record_id, status_raw, event_time, description) DO NOTHING
`, upd.RecordID, e.Status, e.StatusRaw, e.EventTime.UTC(), desc, e.OutOfOrder)
			if isForeignKeyViolation(err) {
				return models.ErrRecordNotFound
			}
			if err != nil {
				return errors.Wrap(err, "insert status event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// isForeignKeyViolation reports an event written for a record that was
// deleted concurrently.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
