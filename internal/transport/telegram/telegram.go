package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"statebot/internal/kit"
	logx "statebot/pkg/logx"
)

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	Token string
	// BaseURL overrides the Bot API host (tests); empty means the real API.
	BaseURL    string
	RatePerSec int
	Timeout    time.Duration
}

// Sender delivers messages through the Telegram Bot API sendMessage method
// as a form POST with chat_id and text fields. A token bucket keeps bursts
// below Telegram's per-chat limits. Safe for concurrent use.
type Sender struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

var _ kit.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}, nil
}

// Send issues one sendMessage call and reports the HTTP status. A non-200
// status is returned in the Outcome, not as an error; errors mean the
// request never completed.
func (s *Sender) Send(ctx context.Context, chatID, text string) (kit.Outcome, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return kit.Outcome{}, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Token)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return kit.Outcome{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return kit.Outcome{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return kit.Outcome{Status: resp.StatusCode}, nil
}
