package poller

import (
	"math/rand"
	"time"

	"github.com/BearBump/LoanBox/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	TerminalDelay time.Duration // default: 365 days

	ActiveMinDelay time.Duration // default: 10 minutes
	ActiveMaxDelay time.Duration // default: 30 minutes

	PendingDelay time.Duration // default: 90 minutes
	DefaultDelay time.Duration // default: 60 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		TerminalDelay: 365 * 24 * time.Hour,

		ActiveMinDelay: 10 * time.Minute,
		ActiveMaxDelay: 30 * time.Minute,

		PendingDelay: 90 * time.Minute,
		DefaultDelay: 60 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	orDefault := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	orDefault(&cfg.TerminalDelay, def.TerminalDelay)
	orDefault(&cfg.ActiveMinDelay, def.ActiveMinDelay)
	orDefault(&cfg.ActiveMaxDelay, def.ActiveMaxDelay)
	if cfg.ActiveMaxDelay < cfg.ActiveMinDelay {
		cfg.ActiveMaxDelay = cfg.ActiveMinDelay
	}
	orDefault(&cfg.PendingDelay, def.PendingDelay)
	orDefault(&cfg.DefaultDelay, def.DefaultDelay)
	orDefault(&cfg.Backoff1, def.Backoff1)
	orDefault(&cfg.Backoff2, def.Backoff2)
	orDefault(&cfg.Backoff3, def.Backoff3)
	orDefault(&cfg.Backoff4, def.Backoff4)
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCheckDelay schedules the next fetch from the canonical status.
// Terminal records that still carry an open fine keep the default cadence,
// since the fine can still be paid.
func (p *Planner) NextCheckDelay(st models.Status, fine *models.FineSummary) time.Duration {
	switch {
	case st.IsTerminal():
		if fine != nil && !fine.Status.IsTerminal() {
			return p.cfg.DefaultDelay
		}
		return p.cfg.TerminalDelay
	case st.Is(models.StatusInDelivery), st.Is(models.StatusInProgress):
		lo, hi := p.cfg.ActiveMinDelay, p.cfg.ActiveMaxDelay
		if hi == lo {
			return lo
		}
		secMin := int(lo.Seconds())
		secMax := int(hi.Seconds())
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	case st.Is(models.StatusPending), st.IsUnknown():
		return p.cfg.PendingDelay
	default:
		return p.cfg.DefaultDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
