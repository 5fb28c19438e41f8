package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"statebot/internal/dispatch"
	"statebot/internal/forward"
	logx "statebot/pkg/logx"
)

// StatusSource is the forward-service slice the report reads.
type StatusSource interface {
	Status() forward.Snapshot
}

// DeliveryStats exposes the dispatcher counters.
type DeliveryStats interface {
	Stats() dispatch.Stats
}

type Config struct {
	Enabled  bool
	At       string // "HH:MM", validated at config load
	Timezone string // IANA name; empty means local
}

// Service sends a one-line delivery summary once a day. Counters are
// reported as deltas since the previous report.
type Service struct {
	cfg Config
	log logx.Logger

	fwd  StatusSource
	disp DeliveryStats
	out  forward.Dispatcher

	c *cron.Cron

	mu   sync.Mutex
	prev dispatch.Stats
}

func New(cfg Config, fwd StatusSource, disp DeliveryStats, out forward.Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, fwd: fwd, disp: disp, out: out}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	_ = ctx
	if !s.cfg.Enabled {
		return nil
	}

	h, m, err := splitHHMM(s.cfg.At)
	if err != nil {
		return err
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" && !strings.EqualFold(tz, "local") {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("report timezone: %w", err)
		}
		loc = l
	}

	s.c = cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("%d %d * * *", m, h)
	if _, err := s.c.AddFunc(spec, s.SendNow); err != nil {
		return err
	}
	s.c.Start()
	s.log.Info("daily report scheduled", logx.String("at", s.cfg.At), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	stopCtx := s.c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.c = nil
	s.log.Info("daily report stopped")
}

// SendNow composes and dispatches the summary immediately. Also used by the
// /report command.
func (s *Service) SendNow() {
	stats := s.disp.Stats()
	snap := s.fwd.Status()

	s.mu.Lock()
	sent := stats.Sent - s.prev.Sent
	failed := stats.Failed - s.prev.Failed
	s.prev = stats
	s.mu.Unlock()

	text := fmt.Sprintf("daily report: %d sent, %d failed, %d pending", sent, failed, snap.PendingTotal)
	s.out.Dispatch(text)
}

func splitHHMM(raw string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid report time %q, expected HH:MM", raw)
	}
	return t.Hour(), t.Minute(), nil
}
