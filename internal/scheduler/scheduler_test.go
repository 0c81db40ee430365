package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{expr: "0 9 * * *"},
		{expr: " 0 9 * * 1-5 "},
		{expr: "*/15 * * * *"},
		{expr: "", wantErr: true},
		{expr: "0 9 * *", wantErr: true},
		{expr: "0 0 9 * * *", wantErr: true},
		{expr: "nonsense", wantErr: true},
	}
	for _, tt := range tests {
		_, err := Parse(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) err=%v, wantErr=%v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestParseNextActivation(t *testing.T) {
	sched, err := Parse("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	// Saturday morning rolls over to Monday 09:00.
	sat := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	got := sched.Next(sat)
	want := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRunRejectsInvalidSchedule(t *testing.T) {
	err := Run(context.Background(), "bad", time.UTC, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		// Yearly schedule never fires during the test.
		done <- Run(ctx, "0 0 1 1 *", time.UTC, func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no job calls, got %d", calls.Load())
	}
}
