package pgrecords

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/models"
)

const (
	defaultInitialStatus    = string(models.StatusPending)
	defaultInitialStatusRaw = ""

	defaultListLimit = 100
	maxListLimit     = 500
)

var recordColumns = []string{
	"id", "kind", "external_id",
	"payload", "payload_hash",
	"status", "status_raw", "view", "due_at", "completed_at",
	"last_checked_at", "next_check_at",
	"check_fail_count", "last_error",
	"created_at", "updated_at",
}

var terminalStatuses = []string{
	string(models.StatusDelivered),
	string(models.StatusCompleted),
	string(models.StatusCancelled),
	string(models.StatusRejected),
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r       models.Record
		payload []byte
		view    []byte
	)
	if err := row.Scan(
		&r.ID, &r.Kind, &r.ExternalID,
		&payload, &r.PayloadHash,
		&r.Status, &r.StatusRaw, &view, &r.DueAt, &r.CompletedAt,
		&r.LastCheckedAt, &r.NextCheckAt,
		&r.CheckFailCount, &r.LastError,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		r.Payload = json.RawMessage(payload)
	}
	if len(view) > 0 {
		var v models.View
		if err := json.Unmarshal(view, &v); err != nil {
			return nil, errors.Wrap(err, "decode view")
		}
		r.View = &v
	}
	return &r, nil
}

func collect(rows pgx.Rows, what string) ([]*models.Record, error) {
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan "+what)
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateOrGetRecords registers records for refreshing. Already known
// (kind, external_id) pairs are returned as they are. New records are due
// immediately.
func (s *Storage) CreateOrGetRecords(ctx context.Context, items []models.RecordCreateInput) ([]*models.Record, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO records (
  kind, external_id, status, status_raw, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5,$5)
ON CONFLICT (kind, external_id)
DO UPDATE SET updated_at = records.updated_at
RETURNING id
`, string(it.Kind), it.ExternalID, defaultInitialStatus, defaultInitialStatusRaw, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert record")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetRecordsByIDs(ctx, ids)
}

func (s *Storage) GetRecordsByIDs(ctx context.Context, ids []uint64) ([]*models.Record, error) {
	if len(ids) == 0 {
		return []*models.Record{}, nil
	}

	sql, args, err := qb.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select records")
	}
	return collect(rows, "record")
}

// ListRecords filters by kind, canonical status and overdue state. Overdue
// is evaluated against the stored due date and the database clock; terminal
// records and records with a completion time are never overdue.
func (s *Storage) ListRecords(ctx context.Context, f models.RecordFilter) ([]*models.Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := qb.Select(recordColumns...).
		From("records").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if f.Kind != "" {
		q = q.Where(sq.Eq{"kind": string(f.Kind)})
	}
	if len(f.Statuses) > 0 {
		q = q.Where(sq.Eq{"status": f.Statuses})
	}
	if f.Overdue != nil {
		if *f.Overdue {
			q = q.Where(sq.And{
				sq.Expr("due_at < now()"),
				sq.NotEq{"status": terminalStatuses},
				sq.Eq{"completed_at": nil},
			})
		} else {
			q = q.Where(sq.Or{
				sq.Eq{"due_at": nil},
				sq.Expr("due_at >= now()"),
				sq.Eq{"status": terminalStatuses},
				sq.NotEq{"completed_at": nil},
			})
		}
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select records")
	}
	return collect(rows, "record")
}

// RefreshRecord makes a record due now.
func (s *Storage) RefreshRecord(ctx context.Context, recordID uint64) error {
	tag, err := s.db.Exec(ctx, `UPDATE records SET next_check_at = now(), updated_at = now() WHERE id = $1`, recordID)
	if err != nil {
		return errors.Wrap(err, "refresh record")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// ClaimDueRecords picks a batch of due records and pushes their
// next_check_at forward by lease, so concurrent workers skip them while
// they are being processed. Rows locked by another worker are skipped.
func (s *Storage) ClaimDueRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sql, args, err := qb.Select(recordColumns...).
		From("records").
		Where(sq.LtOrEq{"next_check_at": now.UTC()}).
		OrderBy("next_check_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select due records")
	}
	picked, err := collect(rows, "due record")
	if err != nil {
		return nil, err
	}

	leaseUntil := now.UTC().Add(lease)
	for _, r := range picked {
		_, err := tx.Exec(ctx, `UPDATE records SET next_check_at = $2, updated_at = now() WHERE id = $1`, r.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease record")
		}
		r.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
