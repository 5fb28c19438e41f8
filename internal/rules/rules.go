package rules

import (
	"fmt"
	"sort"
	"strings"

	"statebot/internal/kit"
)

// Disposition is the per-rule delivery policy.
//
// The zero value (unset) is distinct from an explicit "normal": an unset
// disposition on the catch-all rule defers to the global collect-default
// policy, while an explicit "normal" always sends immediately.
type Disposition int

const (
	DispositionUnset Disposition = iota
	DispositionNormal
	DispositionCollect
	DispositionIgnore
)

func (d Disposition) String() string {
	switch d {
	case DispositionNormal:
		return "normal"
	case DispositionCollect:
		return "collect"
	case DispositionIgnore:
		return "ignore"
	default:
		return ""
	}
}

// ParseDisposition maps a config string to a Disposition.
// The empty string is valid and means "unset".
func ParseDisposition(s string) (Disposition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DispositionUnset, nil
	case "normal":
		return DispositionNormal, nil
	case "collect":
		return DispositionCollect, nil
	case "ignore":
		return DispositionIgnore, nil
	default:
		return DispositionUnset, fmt.Errorf("unknown disposition %q", s)
	}
}

// Rule is one configured routing override.
// Empty Device means "any device"; empty Value means "any value".
type Rule struct {
	Device      string
	Value       string
	Message     string // template; empty means use the global default
	Disposition Disposition
}

// IsCatchAll reports whether the rule constrains neither device nor value.
func (r Rule) IsCatchAll() bool { return r.Device == "" && r.Value == "" }

// priorityClass orders rules for first-match scanning:
// device+value rules win over device-only rules, which win over
// value-only rules and the catch-all.
func (r Rule) priorityClass() int {
	switch {
	case r.Device != "" && r.Value != "":
		return 0
	case r.Device != "":
		return 1
	default:
		return 2
	}
}

// Catalog is the priority-sorted rule set. It is immutable after NewCatalog.
type Catalog struct {
	rules []Rule
}

// NewCatalog copies and sorts the configured rules so that a first-match
// linear scan reproduces the priority order. The sort is stable: rules in
// the same priority class keep their configuration order.
func NewCatalog(rs []Rule) *Catalog {
	sorted := append([]Rule(nil), rs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priorityClass() < sorted[j].priorityClass()
	})
	return &Catalog{rules: sorted}
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Rules returns a copy of the sorted rule list.
func (c *Catalog) Rules() []Rule {
	if c == nil {
		return nil
	}
	return append([]Rule(nil), c.rules...)
}

// Match returns the first rule applying to the notification, scanning the
// priority-sorted catalog. A rule applies when its device is empty or equals
// the notification source, and its value is empty or equals the notification
// value. Returns ok=false when nothing applies; the caller then consults the
// forward-all policy.
//
// Pure function: no side effects, no I/O.
func (c *Catalog) Match(n kit.Notification) (Rule, bool) {
	if c == nil {
		return Rule{}, false
	}
	for _, r := range c.rules {
		if r.Device != "" && r.Device != n.Source {
			continue
		}
		if r.Value != "" && r.Value != n.Message.Value {
			continue
		}
		return r, true
	}
	return Rule{}, false
}
