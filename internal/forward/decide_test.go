package forward

import (
	"testing"

	"statebot/internal/kit"
	"statebot/internal/rules"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	n := kit.Notification{
		Timestamp: 5,
		Message:   kit.Body{Dev: "door", Value: "open"},
	}

	tests := []struct {
		name     string
		rule     rules.Rule
		matched  bool
		pol      Policy
		defTpl   string
		wantKind ActionKind
		wantText string
	}{
		{
			name:     "unmatched suppressed by default",
			matched:  false,
			wantKind: ActionSuppress,
		},
		{
			name:     "unmatched with forward all sends default template",
			matched:  false,
			pol:      Policy{ForwardAll: true},
			defTpl:   "$DEVICE=$VALUE",
			wantKind: ActionSendNow,
			wantText: "door=open",
		},
		{
			name:     "unmatched with forward all and collect default batches",
			matched:  false,
			pol:      Policy{ForwardAll: true, CollectDefault: true},
			wantKind: ActionCollect,
			wantText: "door: open",
		},
		{
			name:     "ignore suppresses",
			rule:     rules.Rule{Device: "door", Disposition: rules.DispositionIgnore},
			matched:  true,
			wantKind: ActionSuppress,
		},
		{
			name:     "collect batches with rule template",
			rule:     rules.Rule{Device: "door", Message: "[$DEVICE] $VALUE", Disposition: rules.DispositionCollect},
			matched:  true,
			wantKind: ActionCollect,
			wantText: "[door] open",
		},
		{
			name:     "normal sends now",
			rule:     rules.Rule{Device: "door", Message: "hi $VALUE", Disposition: rules.DispositionNormal},
			matched:  true,
			wantKind: ActionSendNow,
			wantText: "hi open",
		},
		{
			name:     "unset disposition sends now",
			rule:     rules.Rule{Device: "door", Message: "x"},
			matched:  true,
			pol:      Policy{CollectDefault: true},
			wantKind: ActionSendNow,
			wantText: "x",
		},
		{
			name:     "unset catch-all obeys collect default",
			rule:     rules.Rule{Message: "y"},
			matched:  true,
			pol:      Policy{CollectDefault: true},
			wantKind: ActionCollect,
			wantText: "y",
		},
		{
			name:     "empty rule template falls back to default template",
			rule:     rules.Rule{Device: "door", Disposition: rules.DispositionNormal},
			matched:  true,
			defTpl:   "default $VALUE",
			wantKind: ActionSendNow,
			wantText: "default open",
		},
		{
			name:     "no templates at all",
			rule:     rules.Rule{Device: "door", Disposition: rules.DispositionNormal},
			matched:  true,
			wantKind: ActionSendNow,
			wantText: "door: open",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.rule, tt.matched, n, tt.pol, tt.defTpl)
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Kind != ActionSuppress && got.Text != tt.wantText {
				t.Fatalf("text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}
