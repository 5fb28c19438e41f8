package forward

import (
	"strconv"
	"strings"

	"statebot/internal/kit"
)

// Placeholders understood by message templates.
const (
	placeholderTime   = "$TIME"
	placeholderDevice = "$DEVICE"
	placeholderValue  = "$VALUE"
)

// Compose renders a template against the notification fields. Every
// occurrence of each placeholder is substituted in a single pass, so values
// containing placeholder-like text are never re-expanded. An empty template
// falls back to "<device>: <value>".
func Compose(template string, n kit.Notification) string {
	if template == "" {
		return Fallback(n)
	}
	r := strings.NewReplacer(
		placeholderTime, strconv.FormatInt(n.Timestamp, 10),
		placeholderDevice, n.Message.Dev,
		placeholderValue, n.Message.Value,
	)
	return r.Replace(template)
}

// Fallback is the message text used when no template is configured.
func Fallback(n kit.Notification) string {
	return n.Message.Dev + ": " + n.Message.Value
}
