package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"statebot/internal/eventbus"
	"statebot/internal/kit"
	"statebot/internal/storage"
	logx "statebot/pkg/logx"
)

// Bus event types published per completed send.
const (
	EventSent   = "dispatch.sent"
	EventFailed = "dispatch.failed"
)

type Config struct {
	ChatID string
	// SendTimeout bounds a single outbound call. Keep tight to avoid
	// hanging goroutines.
	SendTimeout time.Duration
}

type Stats struct {
	Sent   uint64
	Failed uint64
}

// Dispatcher owns the outbound message send. Dispatch is fire-and-forget:
// the caller returns immediately and the outcome only surfaces through logs,
// counters and the optional delivery store. Failures are never retried and
// never propagate back into the notification handler.
type Dispatcher struct {
	cfg    Config
	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	store  storage.Store // may be nil

	wg     sync.WaitGroup
	sent   atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, sender kit.Sender, store storage.Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg, log: log, sender: sender, bus: bus, store: store}
}

// Dispatch issues one asynchronous send. Empty texts are dropped.
func (d *Dispatcher) Dispatch(text string) {
	if text == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(text)
	}()
}

func (d *Dispatcher) send(text string) {
	// Deliberately detached from the caller's lifetime: a send already in
	// flight at shutdown is allowed to complete or fail on its own.
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	out, err := d.sender.Send(ctx, d.cfg.ChatID, text)

	ok := err == nil && out.OK()
	if ok {
		d.sent.Add(1)
		d.log.Info("message sent", logx.Int("status", out.Status), logx.Int("len", len(text)))
	} else {
		d.failed.Add(1)
		d.log.Error("message send failed",
			logx.Int("status", out.Status),
			logx.Err(err),
		)
	}

	if d.bus != nil {
		typ := EventSent
		if !ok {
			typ = EventFailed
		}
		d.bus.Publish(eventbus.Event{Type: typ, Data: out.Status})
	}

	if d.store != nil {
		e := storage.DeliveryEntry{
			At:     time.Now(),
			ChatID: d.cfg.ChatID,
			Status: out.Status,
			OK:     ok,
			Text:   truncate(text, 500),
		}
		if err != nil {
			e.Error = err.Error()
		}
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		if serr := d.store.AppendDelivery(sctx, e); serr != nil {
			d.log.Debug("delivery log append failed", logx.Err(serr))
		}
		scancel()
	}
}

// Stats returns totals since process start.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load()}
}

// Close waits for in-flight sends, bounded by ctx. Sends are not cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, maxN int) string {
	if len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
