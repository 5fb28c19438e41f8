package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"statebot/internal/dispatch"
	"statebot/internal/forward"
	"statebot/internal/storage"
	logx "statebot/pkg/logx"
)

// Forwarder is the slice of the forward service the commands need.
type Forwarder interface {
	Status() forward.Snapshot
	ForceFlush()
}

// DeliveryStats exposes the dispatcher counters.
type DeliveryStats interface {
	Stats() dispatch.Stats
}

type Config struct {
	Token        string
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

// Service answers operator commands (/status, /flush, /report) over Telegram
// long polling. Only configured owner user IDs are served; everyone else is
// silently ignored.
type Service struct {
	cfg Config
	log logx.Logger

	bot   *tele.Bot
	fwd   Forwarder
	disp  DeliveryStats
	store storage.Store // may be nil

	reportMu sync.Mutex
	report   func()

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, fwd Forwarder, disp DeliveryStats, store storage.Store, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, log: log, bot: b, fwd: fwd, disp: disp, store: store}, nil
}

// SetReportFunc installs the /report handler target (the report service).
func (s *Service) SetReportFunc(fn func()) {
	s.reportMu.Lock()
	s.report = fn
	s.reportMu.Unlock()
}

func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.runWG.Add(1)
	s.runMu.Unlock()

	s.bot.Handle("/status", s.guard(s.handleStatus))
	s.bot.Handle("/flush", s.guard(s.handleFlush))
	s.bot.Handle("/report", s.guard(s.handleReport))

	go func() {
		defer s.runWG.Done()
		go func() {
			<-rctx.Done()
			s.bot.Stop()
		}()
		s.log.Info("command polling started")
		s.bot.Start() // blocks until Stop() called
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	wasRunning := s.running
	s.running = false
	s.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	go s.bot.Stop()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		s.log.Info("command polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		s.log.Warn("command stop grace elapsed; continuing shutdown")
		return nil
	}
}

// guard drops updates from anyone who isn't a configured owner.
func (s *Service) guard(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !s.isOwner(sender.ID) {
			return nil
		}
		return h(c)
	}
}

func (s *Service) isOwner(id int64) bool {
	if len(s.cfg.OwnerUserIDs) == 0 {
		return false
	}
	for _, o := range s.cfg.OwnerUserIDs {
		if o == id {
			return true
		}
	}
	return false
}

func (s *Service) handleStatus(c tele.Context) error {
	snap := s.fwd.Status()
	stats := s.disp.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "sent %d, failed %d\n", stats.Sent, stats.Failed)
	fmt.Fprintf(&b, "seen %d, collected %d, suppressed %d\n", snap.Seen, snap.Collected, snap.Suppressed)
	fmt.Fprintf(&b, "pending: %d", snap.PendingTotal)
	for dev, n := range snap.Pending {
		fmt.Fprintf(&b, "\n  %s: %d", dev, n)
	}
	if !snap.NextFlush.IsZero() {
		fmt.Fprintf(&b, "\nnext flush: %s", snap.NextFlush.Format("15:04:05"))
	}
	if len(snap.FlushTimes) > 0 {
		fmt.Fprintf(&b, "\nflush times: %s", strings.Join(snap.FlushTimes, ", "))
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		entries, err := s.store.Recent(ctx, 20)
		cancel()
		if err == nil {
			shown := 0
			for _, e := range entries {
				if e.OK {
					continue
				}
				if shown == 0 {
					b.WriteString("\nrecent failures:")
				}
				fmt.Fprintf(&b, "\n  %s status=%d %s", e.At.Format("15:04:05"), e.Status, e.Error)
				shown++
				if shown >= 5 {
					break
				}
			}
		}
	}

	return c.Send(b.String())
}

func (s *Service) handleFlush(c tele.Context) error {
	s.fwd.ForceFlush()
	return c.Send("flush requested")
}

func (s *Service) handleReport(c tele.Context) error {
	s.reportMu.Lock()
	fn := s.report
	s.reportMu.Unlock()
	if fn == nil {
		return c.Send("reporting is not enabled")
	}
	fn()
	return c.Send("report requested")
}
