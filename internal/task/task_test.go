package task

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		ok   bool
	}{
		{"minimal", Params{PID: 1, C: 1, T: 1}, true},
		{"equal", Params{PID: 1, C: 500, T: 500}, true},
		{"max", Params{PID: 1, C: 10000, T: 10000}, true},
		{"typical", Params{PID: 1, C: 200, T: 500}, true},
		{"zero C", Params{PID: 1, C: 0, T: 10}, false},
		{"negative C", Params{PID: 1, C: -5, T: 10}, false},
		{"zero T", Params{PID: 1, C: 1, T: 0}, false},
		{"negative T", Params{PID: 1, C: 1, T: -1}, false},
		{"C too large", Params{PID: 1, C: 10001, T: 10000}, false},
		{"T too large", Params{PID: 1, C: 10, T: 10001}, false},
		{"C over T", Params{PID: 1, C: 501, T: 500}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	p := Params{PID: 7, C: 200, T: 500}
	if p.Period() != 500*time.Millisecond {
		t.Fatalf("period: %v", p.Period())
	}
	if p.Budget() != 200*time.Millisecond {
		t.Fatalf("budget: %v", p.Budget())
	}
	if p.String() != "pid=7 C=200ms T=500ms" {
		t.Fatalf("string: %q", p.String())
	}
}
