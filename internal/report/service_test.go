package report

import (
	"context"
	"sync"
	"testing"

	"statebot/internal/dispatch"
	"statebot/internal/forward"
	logx "statebot/pkg/logx"
)

type fakeStatus struct{ snap forward.Snapshot }

func (f *fakeStatus) Status() forward.Snapshot { return f.snap }

type fakeStats struct {
	mu sync.Mutex
	st dispatch.Stats
}

func (f *fakeStats) Stats() dispatch.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeStats) set(st dispatch.Stats) {
	f.mu.Lock()
	f.st = st
	f.mu.Unlock()
}

type captureOut struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureOut) Dispatch(text string) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
}

func (c *captureOut) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		t.Fatal("no report dispatched")
	}
	return c.texts[len(c.texts)-1]
}

func TestSendNowReportsDeltas(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{snap: forward.Snapshot{PendingTotal: 3}}
	stats := &fakeStats{}
	out := &captureOut{}
	svc := New(Config{Enabled: true, At: "21:00"}, status, stats, out, logx.Nop())

	stats.set(dispatch.Stats{Sent: 10, Failed: 2})
	svc.SendNow()
	if got := out.last(t); got != "daily report: 10 sent, 2 failed, 3 pending" {
		t.Fatalf("report = %q", got)
	}

	// The next report covers only what happened since the previous one.
	stats.set(dispatch.Stats{Sent: 15, Failed: 2})
	status.snap = forward.Snapshot{PendingTotal: 0}
	svc.SendNow()
	if got := out.last(t); got != "daily report: 5 sent, 0 failed, 0 pending" {
		t.Fatalf("report = %q", got)
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: false}, &fakeStatus{}, &fakeStats{}, &captureOut{}, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Stop(context.Background())
}

func TestStartRejectsBadTime(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, At: "9pm"}, &fakeStatus{}, &fakeStats{}, &captureOut{}, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed report time")
	}
}

func TestStartRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, At: "21:00", Timezone: "Mars/Olympus"},
		&fakeStatus{}, &fakeStats{}, &captureOut{}, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected an error for an unknown timezone")
	}
}

func TestSplitHHMM(t *testing.T) {
	t.Parallel()

	h, m, err := splitHHMM(" 21:30 ")
	if err != nil || h != 21 || m != 30 {
		t.Fatalf("splitHHMM = %d, %d, %v", h, m, err)
	}
	if _, _, err := splitHHMM("24:00"); err == nil {
		t.Fatal("expected an error for hour 24")
	}
}
