package config

import (
	"fmt"
	"strings"
	"time"

	"statebot/internal/forward"
	"statebot/internal/rules"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Forward  ForwardConfig  `json:"forward"`
	Report   ReportConfig   `json:"report,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`

	// CommandsEnabled starts the operator command listener (/status, /flush).
	CommandsEnabled bool    `json:"commands_enabled,omitempty"`
	OwnerUserIDs    []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sendMessage calls. 0 means the default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// ForwardConfig is the routing surface: the rule catalog, the global policy
// flags and the daily flush points.
type ForwardConfig struct {
	DefaultTemplate string `json:"default_template,omitempty"`

	// ForwardAll sends notifications matching no rule instead of dropping them.
	ForwardAll bool `json:"forward_all,omitempty"`
	// CollectDefault batches default-path messages instead of sending them
	// immediately.
	CollectDefault bool `json:"collect_default,omitempty"`

	// FlushTimes is a comma-separated list of daily "HH:MM" flush points.
	// Required whenever anything collects.
	FlushTimes string `json:"flush_times,omitempty"`
	// Timezone for flush points (IANA name); empty means local time.
	Timezone string `json:"timezone,omitempty"`

	Rules []RuleConfig `json:"rules,omitempty"`
}

type RuleConfig struct {
	Device string `json:"device,omitempty"`
	Value  string `json:"value,omitempty"`
	// Message is a template with $TIME/$DEVICE/$VALUE placeholders;
	// empty means the global default template.
	Message string `json:"message,omitempty"`
	// Disposition is "normal", "collect" or "ignore"; empty defers to policy.
	Disposition string `json:"disposition,omitempty"`
}

type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// At is the daily report time as "HH:MM".
	At       string `json:"at,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	// Verbosity: 0 = none, 1 = errors only, 2 = all.
	Verbosity int         `json:"verbosity"`
	Console   bool        `json:"console"`
	File      LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate rejects malformed input at load time so runtime code never sees
// an unparsable disposition, time list or duration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}

	if c.Logging.Verbosity < 0 || c.Logging.Verbosity > 2 {
		return fmt.Errorf("logging.verbosity must be 0, 1 or 2")
	}

	collects := c.Forward.CollectDefault
	for i, r := range c.Forward.Rules {
		d, err := rules.ParseDisposition(r.Disposition)
		if err != nil {
			return fmt.Errorf("forward.rules[%d]: %w", i, err)
		}
		if d == rules.DispositionCollect {
			collects = true
		}
	}

	loc, err := c.Forward.Location()
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.Forward.FlushTimes) != "" || collects {
		// Parsing both validates the format and catches the empty-list
		// misconfiguration while collection is enabled.
		if _, err := forward.NewSchedule(c.Forward.FlushTimes, loc); err != nil {
			return fmt.Errorf("forward.flush_times: %w", err)
		}
	}

	if c.Report.Enabled {
		at := strings.TrimSpace(c.Report.At)
		if at == "" {
			return fmt.Errorf("report.at is required when report.enabled")
		}
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("report.at: invalid time %q, expected HH:MM", at)
		}
		if tz := strings.TrimSpace(c.Report.Timezone); tz != "" && !strings.EqualFold(tz, "local") {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("report.timezone: %w", err)
			}
		}
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}

// Location resolves the forward timezone; empty or "Local" means local time.
func (f ForwardConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(f.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("forward.timezone: %w", err)
	}
	return loc, nil
}

// CatalogRules converts the configured rules into catalog rules.
// Call only after Validate.
func (f ForwardConfig) CatalogRules() ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		d, err := rules.ParseDisposition(r.Disposition)
		if err != nil {
			return nil, fmt.Errorf("forward.rules[%d]: %w", i, err)
		}
		out = append(out, rules.Rule{
			Device:      strings.TrimSpace(r.Device),
			Value:       strings.TrimSpace(r.Value),
			Message:     r.Message,
			Disposition: d,
		})
	}
	return out, nil
}
