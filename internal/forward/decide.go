package forward

import (
	"statebot/internal/kit"
	"statebot/internal/rules"
)

// Policy holds the global flags consulted when no rule decides on its own.
type Policy struct {
	// ForwardAll sends notifications that match no rule (instead of
	// suppressing them).
	ForwardAll bool
	// CollectDefault batches instead of sending immediately whenever the
	// decision falls through to the default path.
	CollectDefault bool
}

type ActionKind int

const (
	ActionSendNow ActionKind = iota
	ActionCollect
	ActionSuppress
)

func (k ActionKind) String() string {
	switch k {
	case ActionSendNow:
		return "send"
	case ActionCollect:
		return "collect"
	default:
		return "suppress"
	}
}

// Action is the synchronous per-notification delivery decision.
type Action struct {
	Kind ActionKind
	Text string
}

// Decide maps a match result onto an Action.
//
// Matched rules: ignore suppresses, collect batches, normal sends now. An
// unset disposition sends now, except on the catch-all rule where the
// CollectDefault policy may turn it into a collect. Unmatched notifications
// are suppressed unless ForwardAll is set, in which case they take the
// default template and the CollectDefault policy picks between send and
// collect.
func Decide(r rules.Rule, matched bool, n kit.Notification, pol Policy, defaultTemplate string) Action {
	if !matched {
		if !pol.ForwardAll {
			return Action{Kind: ActionSuppress}
		}
		text := Compose(defaultTemplate, n)
		if pol.CollectDefault {
			return Action{Kind: ActionCollect, Text: text}
		}
		return Action{Kind: ActionSendNow, Text: text}
	}

	if r.Disposition == rules.DispositionIgnore {
		return Action{Kind: ActionSuppress}
	}

	tpl := r.Message
	if tpl == "" {
		tpl = defaultTemplate
	}
	text := Compose(tpl, n)

	switch r.Disposition {
	case rules.DispositionCollect:
		return Action{Kind: ActionCollect, Text: text}
	case rules.DispositionUnset:
		if r.IsCatchAll() && pol.CollectDefault {
			return Action{Kind: ActionCollect, Text: text}
		}
		return Action{Kind: ActionSendNow, Text: text}
	default:
		return Action{Kind: ActionSendNow, Text: text}
	}
}
