package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/broker/messages"
	"github.com/BearBump/LoanBox/internal/cache"
	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/lifecycle/assembly"
	"github.com/BearBump/LoanBox/internal/lifecycle/fines"
	"github.com/BearBump/LoanBox/internal/models"
	"github.com/BearBump/LoanBox/internal/storage/pgrecords"
)

const maxCreateItems = 10_000

var ErrInvalidArgument = errors.New("invalid argument")

type Repository interface {
	CreateOrGetRecords(ctx context.Context, items []models.RecordCreateInput) ([]*models.Record, error)
	GetRecordsByIDs(ctx context.Context, ids []uint64) ([]*models.Record, error)
	ListRecords(ctx context.Context, f models.RecordFilter) ([]*models.Record, error)
	ListStatusEvents(ctx context.Context, recordID uint64, limit, offset int) ([]*models.StatusEvent, error)
	RefreshRecord(ctx context.Context, recordID uint64) error
	ApplyRecordUpdate(ctx context.Context, upd pgrecords.RecordUpdate) error
}

type Service struct {
	repo        Repository
	cache       cache.BytesCache
	snapshotTTL time.Duration
	engine      *lifecycle.Engine
	now         func() time.Time
}

func New(repo Repository, c cache.BytesCache, snapshotTTL time.Duration, engine *lifecycle.Engine) *Service {
	if engine == nil {
		engine = lifecycle.NewEngine(nil)
	}
	return &Service{
		repo:        repo,
		cache:       c,
		snapshotTTL: snapshotTTL,
		engine:      engine,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func invalid(msg string) error {
	return errors.Wrap(ErrInvalidArgument, msg)
}

func (s *Service) CreateRecords(ctx context.Context, items []models.RecordCreateInput) ([]*models.Record, error) {
	if len(items) == 0 {
		return nil, invalid("items is empty")
	}
	if len(items) > maxCreateItems {
		return nil, invalid("too many items (max 10000)")
	}

	clean := make([]models.RecordCreateInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if !it.Kind.Valid() {
			return nil, invalid(fmt.Sprintf("unknown kind %q", it.Kind))
		}
		if it.ExternalID == "" {
			return nil, invalid("externalId is required")
		}
		k := fmt.Sprintf("%s|%s", it.Kind, it.ExternalID)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, it)
	}

	out, err := s.repo.CreateOrGetRecords(ctx, clean)
	if err != nil {
		return nil, err
	}
	s.attachViews(ctx, out)
	return out, nil
}

// GetRecordsByIDs returns records in the order of ids with views derived at
// the current time. Unknown ids are skipped.
func (s *Service) GetRecordsByIDs(ctx context.Context, ids []uint64) ([]*models.Record, error) {
	if len(ids) == 0 {
		return []*models.Record{}, nil
	}
	fromDB, err := s.repo.GetRecordsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	got := make(map[uint64]*models.Record, len(fromDB))
	for _, r := range fromDB {
		got[r.ID] = r
	}

	out := make([]*models.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := got[id]; ok {
			out = append(out, r)
		}
	}
	s.attachViews(ctx, out)
	return out, nil
}

func (s *Service) ListRecords(ctx context.Context, f models.RecordFilter) ([]*models.Record, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, invalid(fmt.Sprintf("unknown kind %q", f.Kind))
	}
	out, err := s.repo.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	s.attachViews(ctx, out)
	return out, nil
}

func (s *Service) ListStatusEvents(ctx context.Context, recordID uint64, limit, offset int) ([]*models.StatusEvent, error) {
	return s.repo.ListStatusEvents(ctx, recordID, limit, offset)
}

func (s *Service) RefreshRecord(ctx context.Context, recordID uint64) error {
	if recordID == 0 {
		return invalid("recordId is required")
	}
	return s.repo.RefreshRecord(ctx, recordID)
}

// Derive computes a view for an ad-hoc payload without storing it.
func (s *Service) Derive(ctx context.Context, kind models.Kind, raw []byte) (models.View, error) {
	if !kind.Valid() {
		return models.View{}, invalid(fmt.Sprintf("unknown kind %q", kind))
	}
	snap, err := s.snapshot(ctx, kind, raw)
	if err != nil {
		return models.View{}, err
	}
	return s.engine.View(snap, s.now()), nil
}

// TransitionFine applies one payment step. Refused steps return the fine
// unchanged with a *models.NoOpError.
func (s *Service) TransitionFine(f models.FineRecord, to models.FineStatus, method models.PaymentMethod) (models.FineRecord, error) {
	return fines.Transition(f, to, method, s.now())
}

// ApplyRefresh persists a worker update and warms the snapshot cache for
// the new payload.
func (s *Service) ApplyRefresh(ctx context.Context, msg messages.RecordRefreshed) error {
	if msg.RecordID == 0 {
		return invalid("record_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = s.now()
	}
	if msg.NextCheckAt.IsZero() {
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	upd := pgrecords.RecordUpdate{
		RecordID:    msg.RecordID,
		CheckedAt:   msg.CheckedAt,
		Payload:     msg.Payload,
		PayloadHash: msg.PayloadHash,
		Status:      msg.Status,
		StatusRaw:   msg.StatusRaw,
		View:        msg.View,
		NextCheckAt: msg.NextCheckAt,
		Error:       msg.Error,
	}
	for _, e := range msg.Events {
		upd.Events = append(upd.Events, &models.StatusEvent{
			RecordID:    msg.RecordID,
			Status:      e.Status,
			StatusRaw:   e.StatusRaw,
			EventTime:   e.EventTime,
			Description: e.Description,
			OutOfOrder:  e.OutOfOrder,
		})
	}

	if msg.Error == nil && len(msg.Payload) > 0 && msg.Kind.Valid() {
		snap, err := s.snapshot(ctx, msg.Kind, msg.Payload)
		if err != nil {
			return err
		}
		if upd.PayloadHash == "" {
			upd.PayloadHash = lifecycle.ContentHash(msg.Payload)
		}
		if upd.Status == "" {
			upd.Status = string(snap.Status().Code)
			upd.StatusRaw = snap.RawStatus()
		}
		if upd.View == nil {
			v := s.engine.View(snap, msg.CheckedAt)
			upd.View = &v
		}
		upd.DueAt = snap.DueAt()
		upd.CompletedAt = snap.CompletedAt()
	}

	return s.repo.ApplyRecordUpdate(ctx, upd)
}

func (s *Service) attachViews(ctx context.Context, recs []*models.Record) {
	now := s.now()
	for _, r := range recs {
		if len(r.Payload) == 0 {
			continue
		}
		snap, err := s.snapshot(ctx, r.Kind, r.Payload)
		if err != nil {
			slog.Warn("derive stored payload", "record_id", r.ID, "error", err.Error())
			continue
		}
		v := s.engine.View(snap, now)
		r.View = &v
	}
}

// snapshot returns the now-independent part of the derivation, cached by
// the payload content hash.
func (s *Service) snapshot(ctx context.Context, kind models.Kind, raw []byte) (lifecycle.Snapshot, error) {
	useCache := s.cache != nil && s.snapshotTTL > 0
	key := snapshotKey(kind, lifecycle.ContentHash(raw))

	if useCache {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var snap lifecycle.Snapshot
			if json.Unmarshal(b, &snap) == nil && snap.Kind == kind {
				return snap, nil
			}
		}
	}

	p, err := assembly.Decode(raw)
	if err != nil {
		return lifecycle.Snapshot{}, invalid(err.Error())
	}
	snap, err := s.engine.Snapshot(kind, p)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	if useCache {
		if b, err := json.Marshal(snap); err == nil {
			_ = s.cache.Set(ctx, key, b, s.snapshotTTL)
		}
	}
	return snap, nil
}

func snapshotKey(kind models.Kind, hash string) string {
	return fmt.Sprintf("snapshot:%s:%s", kind, hash)
}
