package command

import (
	"testing"

	logx "statebot/pkg/logx"
)

func TestIsOwner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		owners []int64
		id     int64
		want   bool
	}{
		{name: "listed owner", owners: []int64{1, 2}, id: 2, want: true},
		{name: "unlisted user", owners: []int64{1, 2}, id: 3, want: false},
		{name: "empty list serves nobody", owners: nil, id: 1, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := &Service{cfg: Config{OwnerUserIDs: tt.owners}}
			if got := s.isOwner(tt.id); got != tt.want {
				t.Fatalf("isOwner(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Token: " "}, nil, nil, nil, logx.Nop()); err == nil {
		t.Fatal("expected an error for an empty token")
	}
}
