package forward

import "sync"

// Entry is one collected message waiting for the next flush.
type Entry struct {
	Time int64 // epoch seconds from the notification
	Text string
}

// Batch accumulates pending messages grouped by device name until the next
// flush. Per-device insertion order is preserved. Safe for concurrent use;
// Drain swaps the whole map out atomically so a collect racing a flush can
// never be lost or delivered twice.
type Batch struct {
	mu      sync.Mutex
	entries map[string][]Entry
	n       int
}

func NewBatch() *Batch {
	return &Batch{entries: map[string][]Entry{}}
}

// Collect appends an entry to the device's pending sequence, creating the
// sequence if absent.
func (b *Batch) Collect(dev string, ts int64, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries == nil {
		b.entries = map[string][]Entry{}
	}
	b.entries[dev] = append(b.entries[dev], Entry{Time: ts, Text: text})
	b.n++
}

// Drain returns the full current contents and resets the batch to empty, as
// one atomic unit.
func (b *Batch) Drain() map[string][]Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = map[string][]Entry{}
	b.n = 0
	return out
}

// Len returns the total number of pending entries across all devices.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Pending returns a per-device count snapshot.
func (b *Batch) Pending() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.entries))
	for dev, es := range b.entries {
		out[dev] = len(es)
	}
	return out
}
