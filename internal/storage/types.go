package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (append-only jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one completed outbound send.
// Keep it compact and schema-stable. Pending batches are never persisted;
// only finished send outcomes land here.
type DeliveryEntry struct {
	At     time.Time `json:"at"`
	ChatID string    `json:"chat_id"`
	Status int       `json:"status"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	Text   string    `json:"text,omitempty"`
}
