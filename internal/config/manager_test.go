package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimalJSON = `{
  "telegram": {"token": "tok", "chat_id": "42"},
  "forward": {
    "default_template": "$DEVICE: $VALUE",
    "flush_times": "08:00,20:00",
    "rules": [
      {"device": "door", "message": "door is $VALUE"},
      {"device": "sensor", "disposition": "collect"}
    ]
  },
  "logging": {"verbosity": 2, "console": true}
}`

func TestManagerLoadJSON(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "tok" || cfg.Telegram.ChatID != "42" {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if len(cfg.Forward.Rules) != 2 || cfg.Forward.Rules[1].Disposition != "collect" {
		t.Fatalf("rules = %+v", cfg.Forward.Rules)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestManagerLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", `
telegram:
  token: tok
  chat_id: "42"
forward:
  flush_times: "08:00"
  rules:
    - device: door
      disposition: collect
logging:
  verbosity: 1
  console: true
`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forward.Rules[0].Device != "door" {
		t.Fatalf("rules = %+v", cfg.Forward.Rules)
	}
	if cfg.Logging.Verbosity != 1 {
		t.Fatalf("verbosity = %d", cfg.Logging.Verbosity)
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"token": "tok", "chat_id": "42", "tokne": "typo"},
  "logging": {"verbosity": 0, "console": false}
}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestManagerRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json",
		`{"telegram": {"token": "t", "chat_id": "c"}, "logging": {"verbosity": 0, "console": false}} {"extra": 1}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected an error for trailing data")
	}
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"token": "tok", "chat_id": "42"},
  "forward": {"collect_default": true},
  "logging": {"verbosity": 0, "console": false}
}`))
	_, err := m.Load()
	if err == nil || !strings.Contains(err.Error(), "flush_times") {
		t.Fatalf("err = %v, want flush_times validation failure", err)
	}
}

func TestManagerMissingFile(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "nope.json"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envToken, "env-token")
	t.Setenv(envChatID, "env-chat")

	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"token": "file-token", "chat_id": "file-chat"},
  "logging": {"verbosity": 0, "console": false}
}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.ChatID != "env-chat" {
		t.Fatalf("telegram = %+v, want env overrides applied", cfg.Telegram)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("published a different config")
		}
	default:
		t.Fatal("no config delivered to subscriber")
	}

	// A full buffer drops the oldest value, never blocks.
	other := *cfg
	m.publish(cfg)
	m.publish(&other)
	select {
	case got := <-ch:
		if got != &other {
			t.Fatal("expected the newest config after overflow")
		}
	default:
		t.Fatal("no config delivered after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after Unsubscribe")
	}
	m.publish(cfg) // must not panic
}
