package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/broker/messages"
	"github.com/BearBump/LoanBox/internal/integrations/backend"
	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/lifecycle/status"
	"github.com/BearBump/LoanBox/internal/models"
)

type Repository interface {
	ClaimDueRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Record, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Deriver interface {
	Derive(kind models.Kind, raw []byte) (lifecycle.Snapshot, models.View, error)
}

const publishAttempts = 10

type Poller struct {
	repo     Repository
	backend  backend.Client
	engine   Deriver
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner
	now     func() time.Time

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	kindRateLimits     map[models.Kind]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, client backend.Client, engine Deriver, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo:               repo,
		backend:            client,
		engine:             engine,
		producer:           producer,
		rl:                 rl,
		topic:              topic,
		planner:            DefaultPlanner(),
		now:                func() time.Time { return time.Now().UTC() },
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		kindRateLimits:     map[models.Kind]int64{},
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// WithKindRateLimits overrides the per-minute backend budget for single
// record kinds. Zero keeps the global limit.
func (p *Poller) WithKindRateLimits(limits map[models.Kind]int) *Poller {
	for kind, n := range limits {
		if n > 0 {
			p.kindRateLimits[kind] = int64(n)
		}
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) recordError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := p.now()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueRecords(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due records", "error", err.Error())
		p.recordError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, rec := range items {
		sem <- struct{}{}
		wg.Add(1)
		p.inFlight.Add(1)
		go func(rec *models.Record) {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, rec); err != nil {
				p.totalErrors.Add(1)
				p.recordError(err)
				slog.Error("process record", "record_id", rec.ID, "kind", rec.Kind, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}(rec)
	}
	wg.Wait()
}

func (p *Poller) throttle(ctx context.Context, kind models.Kind, now time.Time) error {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return nil
	}
	limit := p.rateLimitPerMinute
	if n, ok := p.kindRateLimits[kind]; ok {
		limit = n
	}

	minuteKey := fmt.Sprintf("rl:backend:%s:%s", kind, now.Format("200601021504"))
	allowed, n, err := p.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
	if err != nil {
		return err
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "kind", kind, "count", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil
}

// refresh fetches and derives one record. Fetch and decode failures are
// reported inside the message so the consumer can schedule a retry.
func (p *Poller) refresh(ctx context.Context, rec *models.Record, now time.Time) messages.RecordRefreshed {
	msg := messages.RecordRefreshed{
		RecordID:  rec.ID,
		Kind:      rec.Kind,
		CheckedAt: now,
	}
	fail := func(err error) messages.RecordRefreshed {
		e := err.Error()
		msg.Error = &e
		msg.NextCheckAt = now.Add(p.planner.BackoffDelay(rec.CheckFailCount + 1))
		return msg
	}

	raw, err := p.backend.FetchRecord(ctx, rec.Kind, rec.ExternalID)
	if err != nil {
		return fail(err)
	}
	snap, view, err := p.engine.Derive(rec.Kind, raw)
	if err != nil {
		return fail(err)
	}

	st := snap.Status()
	msg.Payload = raw
	msg.PayloadHash = lifecycle.ContentHash(raw)
	msg.Status = string(st.Code)
	msg.StatusRaw = snap.RawStatus()
	msg.View = &view
	msg.NextCheckAt = now.Add(p.planner.NextCheckDelay(st, view.Fine))
	for _, e := range snap.History() {
		ev := messages.StatusEvent{
			Status:     status.Normalize(models.DomainDelivery, e.Status).String(),
			StatusRaw:  e.Status,
			EventTime:  e.Timestamp,
			OutOfOrder: e.OutOfOrder,
		}
		if e.Description != "" {
			desc := e.Description
			ev.Description = &desc
		}
		msg.Events = append(msg.Events, ev)
	}
	return msg
}

func (p *Poller) processOne(ctx context.Context, rec *models.Record) error {
	now := p.now()
	if err := p.throttle(ctx, rec.Kind, now); err != nil {
		return err
	}

	b, err := json.Marshal(p.refresh(ctx, rec, now))
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(strconv.FormatUint(rec.ID, 10))
	// Kafka may not accept writes right after the stack starts.
	var pubErr error
	for i := 0; i < publishAttempts; i++ {
		if pubErr = p.producer.Publish(ctx, p.topic, key, b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}
