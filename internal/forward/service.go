package forward

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"statebot/internal/eventbus"
	"statebot/internal/kit"
	"statebot/internal/rules"

	logx "statebot/pkg/logx"
)

// Dispatcher is the outbound side of the forwarder. Dispatch must be
// non-blocking (fire-and-forget).
type Dispatcher interface {
	Dispatch(text string)
}

// Settings is the forwarder's routing configuration, swapped wholesale on
// config reload.
type Settings struct {
	Catalog         *rules.Catalog
	Policy          Policy
	DefaultTemplate string
	// Schedule may be nil, which disables batching flushes entirely;
	// config validation guarantees it is set whenever anything collects.
	Schedule *Schedule
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	Pending      map[string]int
	PendingTotal int
	NextFlush    time.Time
	FlushTimes   []string
	Seen         uint64
	Collected    uint64
	Suppressed   uint64
}

// Service is the forwarder module instance. It owns the pending batch and
// the flush timer, and processes host notifications one at a time on a
// single event loop. Sends are handed to the dispatcher and never awaited.
type Service struct {
	log  logx.Logger
	bus  eventbus.Bus
	disp Dispatcher

	mu        sync.Mutex
	set       Settings
	nextFlush time.Time

	batch *Batch

	seen       uint64
	collected  uint64
	suppressed uint64

	events <-chan eventbus.Event
	unsub  func()

	flushReq chan struct{}
	rearmReq chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

func New(set Settings, disp Dispatcher, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		bus:      bus,
		disp:     disp,
		set:      set,
		batch:    NewBatch(),
		flushReq: make(chan struct{}, 1),
		rearmReq: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to host notifications and runs the event loop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.events != nil {
		s.mu.Unlock()
		return
	}
	ch, unsub := s.bus.Subscribe(64, kit.EventNotificationsPush)
	s.events = ch
	s.unsub = unsub
	s.mu.Unlock()

	go s.loop(ctx)
	s.log.Info("forwarder started", logx.Int("rules", s.set.Catalog.Len()))
}

// Stop cancels the flush timer and deregisters the notification handler.
// In-flight sends belong to the dispatcher and are left to complete.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub == nil {
		return
	}

	close(s.stop)
	unsub()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	s.log.Info("forwarder stopped")
}

// Apply swaps catalog, policy, template and flush schedule, re-arming the
// flush timer against the new schedule. Pending batch entries survive a
// reload.
func (s *Service) Apply(set Settings) {
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	select {
	case s.rearmReq <- struct{}{}:
	default:
	}
}

// ForceFlush requests an immediate flush from the event loop.
func (s *Service) ForceFlush() {
	select {
	case s.flushReq <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of pending state and counters.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Pending:      s.batch.Pending(),
		PendingTotal: s.batch.Len(),
		NextFlush:    s.nextFlush,
		Seen:         s.seen,
		Collected:    s.collected,
		Suppressed:   s.suppressed,
	}
	if s.set.Schedule != nil {
		snap.FlushTimes = s.set.Schedule.Times()
	}
	return snap
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	disarm := func() {
		if armed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = false
	}
	arm := func() {
		disarm()
		s.mu.Lock()
		sched := s.set.Schedule
		s.mu.Unlock()
		if sched == nil {
			s.setNextFlush(time.Time{})
			return
		}
		next := sched.Next(time.Now())
		s.setNextFlush(next)
		timer.Reset(time.Until(next))
		armed = true
	}
	arm()
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			if n, ok := ev.Data.(kit.Notification); ok {
				s.handle(n)
			}
		case <-timer.C:
			armed = false
			s.flush("schedule")
			// Recomputing from now also skips points missed while the
			// process was suspended, instead of firing for each of them.
			arm()
		case <-s.flushReq:
			s.flush("manual")
			arm()
		case <-s.rearmReq:
			arm()
		}
	}
}

func (s *Service) handle(n kit.Notification) {
	if !strings.Contains(n.Level, "device") {
		return
	}

	s.mu.Lock()
	set := s.set
	s.seen++
	s.mu.Unlock()

	rule, matched := set.Catalog.Match(n)
	act := Decide(rule, matched, n, set.Policy, set.DefaultTemplate)

	switch act.Kind {
	case ActionSendNow:
		s.disp.Dispatch(act.Text)
	case ActionCollect:
		dev := n.Message.Dev
		if dev == "" {
			dev = n.Source
		}
		s.batch.Collect(dev, n.Timestamp, act.Text)
		s.mu.Lock()
		s.collected++
		s.mu.Unlock()
		s.log.Debug("collected", logx.String("device", dev), logx.Int("pending", s.batch.Len()))
	case ActionSuppress:
		s.mu.Lock()
		s.suppressed++
		s.mu.Unlock()
		s.log.Debug("suppressed", logx.String("source", n.Source), logx.String("value", n.Message.Value))
	}
}

func (s *Service) flush(reason string) {
	entries := s.batch.Drain()
	if len(entries) == 0 {
		s.log.Debug("flush: nothing pending", logx.String("reason", reason))
		return
	}

	s.mu.Lock()
	sched := s.set.Schedule
	s.mu.Unlock()
	loc := time.Local
	if sched != nil {
		loc = sched.Location()
	}

	s.disp.Dispatch(FormatBatch(entries, loc))
	s.log.Info("flushed batch", logx.String("reason", reason), logx.Int("devices", len(entries)))
}

func (s *Service) setNextFlush(t time.Time) {
	s.mu.Lock()
	s.nextFlush = t
	s.mu.Unlock()
}

// FormatBatch renders one flush message: devices in sorted order, each with
// its entries in arrival order as "HH:MM:SS text" lines.
func FormatBatch(entries map[string][]Entry, loc *time.Location) string {
	devs := make([]string, 0, len(entries))
	for dev := range entries {
		devs = append(devs, dev)
	}
	sort.Strings(devs)

	var b strings.Builder
	for i, dev := range devs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(dev)
		b.WriteString(":\n")
		for _, e := range entries[dev] {
			b.WriteString("  ")
			b.WriteString(time.Unix(e.Time, 0).In(loc).Format("15:04:05"))
			b.WriteString(" ")
			b.WriteString(e.Text)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
