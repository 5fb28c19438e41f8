package logx

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelForVerbosity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    int
		want string
	}{
		{v: -1, want: "DISABLED"},
		{v: 0, want: "DISABLED"},
		{v: 1, want: "ERROR"},
		{v: 2, want: "INFO"},
		{v: 9, want: "INFO"},
	}
	for _, tt := range tests {
		if got := LevelForVerbosity(tt.v); got != tt.want {
			t.Fatalf("LevelForVerbosity(%d) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{raw: "debug", want: zerolog.DebugLevel},
		{raw: " INFO ", want: zerolog.InfoLevel},
		{raw: "warning", want: zerolog.WarnLevel},
		{raw: "ERROR", want: zerolog.ErrorLevel},
		{raw: "disabled", want: zerolog.Disabled},
		{raw: "off", want: zerolog.Disabled},
		{raw: "none", want: zerolog.Disabled},
		{raw: "bogus", want: zerolog.InfoLevel},
		{raw: "", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()

	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero value must report IsZero")
	}
	// Must not panic.
	zero.Info("ignored")
	zero.Error("ignored", Err(errors.New("x")))

	nop := Nop()
	if nop.IsZero() {
		t.Fatal("Nop logger is usable, not zero")
	}
	nop.Info("ignored", String("k", "v"))
	if nop.Enabled(LevelDebug) {
		t.Fatal("nop logger must not report debug enabled")
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	parent := Nop()
	child := parent.With(String("comp", "child"))
	if len(parent.fields) != 0 {
		t.Fatal("With must not mutate the parent")
	}
	grand := child.With(Int("n", 1))
	if len(child.fields) != 1 || len(grand.fields) != 2 {
		t.Fatalf("field chain lens = %d, %d", len(child.fields), len(grand.fields))
	}
}
