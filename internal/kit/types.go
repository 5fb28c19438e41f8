package kit

import "context"

// EventNotificationsPush is the host event carrying a device-state Notification.
const EventNotificationsPush = "notifications.push"

// Notification is the host-supplied device-state event payload.
// It is read-only to the forwarder.
type Notification struct {
	// Level classifies the event. Only levels containing the substring
	// "device" are acted on; everything else is ignored.
	Level string `json:"level"`
	// Source is the origin device identifier.
	Source string `json:"source"`
	// Timestamp is epoch seconds on the host clock.
	Timestamp int64 `json:"timestamp"`
	Message   Body  `json:"message"`
}

// Body carries the human-facing device name and the new value.
// Field names mirror the host wire format.
type Body struct {
	Dev   string `json:"dev"`
	Value string `json:"l"`
}

// Outcome reports the result of one outbound send.
type Outcome struct {
	// Status is the HTTP status code of the Bot API response;
	// 0 when the transport failed before receiving one.
	Status int
}

func (o Outcome) OK() bool { return o.Status == 200 }

// Sender performs one outbound message delivery.
//
// Implementations must be safe for concurrent use; the dispatcher issues
// sends from short-lived goroutines.
type Sender interface {
	Send(ctx context.Context, chatID, text string) (Outcome, error)
}
