package forward

import (
	"context"
	"strings"
	"testing"
	"time"

	"statebot/internal/eventbus"
	"statebot/internal/kit"
	"statebot/internal/rules"

	logx "statebot/pkg/logx"
)

type recordingDispatcher struct {
	ch chan string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{ch: make(chan string, 16)}
}

func (d *recordingDispatcher) Dispatch(text string) { d.ch <- text }

func (d *recordingDispatcher) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-d.ch:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatch")
		return ""
	}
}

func (d *recordingDispatcher) none(t *testing.T) {
	t.Helper()
	select {
	case text := <-d.ch:
		t.Fatalf("unexpected dispatch %q", text)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func startService(t *testing.T, set Settings) (*Service, *recordingDispatcher, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	disp := newRecordingDispatcher()
	svc := New(set, disp, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		svc.Stop(stopCtx)
		cancel()
	})
	return svc, disp, bus
}

func publish(bus eventbus.Bus, n kit.Notification) {
	bus.Publish(eventbus.Event{Type: kit.EventNotificationsPush, Data: n})
}

func deviceNote(dev, value string, ts int64) kit.Notification {
	return kit.Notification{
		Level:     "device",
		Source:    dev,
		Timestamp: ts,
		Message:   kit.Body{Dev: dev, Value: value},
	}
}

func TestServiceSendNow(t *testing.T) {
	t.Parallel()

	set := Settings{
		Catalog: rules.NewCatalog([]rules.Rule{
			{Device: "door", Message: "$DEVICE is $VALUE", Disposition: rules.DispositionNormal},
		}),
	}
	_, disp, bus := startService(t, set)

	publish(bus, deviceNote("door", "open", 100))
	if got := disp.next(t); got != "door is open" {
		t.Fatalf("dispatched %q, want %q", got, "door is open")
	}
}

func TestServiceCollectAndForceFlush(t *testing.T) {
	t.Parallel()

	sched, err := NewSchedule("03:00", time.UTC)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	set := Settings{
		Catalog: rules.NewCatalog([]rules.Rule{
			{Device: "sensor", Message: "$VALUE", Disposition: rules.DispositionCollect},
		}),
		Schedule: sched,
	}
	svc, disp, bus := startService(t, set)

	publish(bus, deviceNote("sensor", "21.5", 60))
	publish(bus, deviceNote("sensor", "22.0", 120))
	waitFor(t, func() bool { return svc.Status().Collected == 2 })
	disp.none(t)

	snap := svc.Status()
	if snap.PendingTotal != 2 || snap.Pending["sensor"] != 2 {
		t.Fatalf("pending = %+v", snap)
	}

	svc.ForceFlush()
	text := disp.next(t)
	if !strings.HasPrefix(text, "sensor:\n") {
		t.Fatalf("flush text missing device header: %q", text)
	}
	if !strings.Contains(text, "21.5") || !strings.Contains(text, "22.0") {
		t.Fatalf("flush text missing entries: %q", text)
	}
	if strings.Index(text, "21.5") > strings.Index(text, "22.0") {
		t.Fatalf("entries out of arrival order: %q", text)
	}

	waitFor(t, func() bool { return svc.Status().PendingTotal == 0 })

	// Flushing an empty batch sends nothing.
	svc.ForceFlush()
	disp.none(t)
}

func TestServiceSuppression(t *testing.T) {
	t.Parallel()

	set := Settings{
		Catalog: rules.NewCatalog([]rules.Rule{
			{Device: "noisy", Disposition: rules.DispositionIgnore},
		}),
	}
	svc, disp, bus := startService(t, set)

	publish(bus, deviceNote("noisy", "beep", 1))
	publish(bus, deviceNote("unknown", "x", 2))
	waitFor(t, func() bool { return svc.Status().Suppressed == 2 })
	disp.none(t)
}

func TestServiceIgnoresNonDeviceLevels(t *testing.T) {
	t.Parallel()

	set := Settings{
		Catalog: rules.NewCatalog([]rules.Rule{{Message: "m", Disposition: rules.DispositionNormal}}),
	}
	svc, disp, bus := startService(t, set)

	publish(bus, kit.Notification{
		Level:   "system",
		Source:  "core",
		Message: kit.Body{Dev: "core", Value: "boot"},
	})
	publish(bus, deviceNote("door", "open", 1))

	if got := disp.next(t); got != "m" {
		t.Fatalf("dispatched %q, want %q", got, "m")
	}
	if seen := svc.Status().Seen; seen != 1 {
		t.Fatalf("seen = %d, want 1 (non-device level must not count)", seen)
	}
}

func TestServiceApplySwapsRouting(t *testing.T) {
	t.Parallel()

	set := Settings{
		Catalog: rules.NewCatalog([]rules.Rule{
			{Device: "door", Message: "old", Disposition: rules.DispositionNormal},
		}),
	}
	svc, disp, bus := startService(t, set)

	publish(bus, deviceNote("door", "open", 1))
	if got := disp.next(t); got != "old" {
		t.Fatalf("dispatched %q, want %q", got, "old")
	}

	// Settings swap is synchronous, so the next notification uses the new
	// catalog.
	svc.Apply(Settings{
		Catalog: rules.NewCatalog([]rules.Rule{
			{Device: "door", Message: "new", Disposition: rules.DispositionNormal},
		}),
	})
	publish(bus, deviceNote("door", "open", 2))
	if got := disp.next(t); got != "new" {
		t.Fatalf("dispatched %q, want %q", got, "new")
	}
}

func TestFormatBatch(t *testing.T) {
	t.Parallel()

	entries := map[string][]Entry{
		"zeta":  {{Time: 0, Text: "late"}},
		"alpha": {{Time: 0, Text: "one"}, {Time: 3600, Text: "two"}},
	}
	got := FormatBatch(entries, time.UTC)
	want := "alpha:\n  00:00:00 one\n  01:00:00 two\nzeta:\n  00:00:00 late"
	if got != want {
		t.Fatalf("FormatBatch = %q, want %q", got, want)
	}
}
