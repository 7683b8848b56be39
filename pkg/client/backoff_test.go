package client

import (
	"testing"
	"time"
)

func TestExponentialBackoff_Next(t *testing.T) {
	b := &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    1 * time.Second,
		Factor: 2.0,
		Jitter: 0.0, // Disable jitter for deterministic checks
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second}, // Capped at Max
		{5, 1 * time.Second}, // Capped at Max
	}

	for _, tt := range tests {
		got := b.Next(tt.attempt)
		if got != tt.expected {
			t.Errorf("Next(%d) = %v; want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	b := &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.1, // 10% jitter
	}

	for i := 0; i < 100; i++ {
		got := b.Next(0)
		min := 90 * time.Millisecond  // 100 * 0.9
		max := 110 * time.Millisecond // 100 * 1.1

		if got < min || got > max {
			t.Errorf("Next(0) with jitter = %v; want between %v and %v", got, min, max)
		}
	}
}

func TestReconnectBackoff_Schedule(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    []time.Duration
	}{
		{
			name:    "from 10s",
			timeout: 10 * time.Second,
			want:    []time.Duration{10 * time.Second, 15 * time.Second, 22 * time.Second, 33 * time.Second, 49 * time.Second},
		},
		{
			name:    "raised to 5s",
			timeout: time.Second,
			want:    []time.Duration{5 * time.Second, 7 * time.Second, 10 * time.Second, 15 * time.Second, 22 * time.Second},
		},
		{
			name:    "capped at 600s",
			timeout: 400 * time.Second,
			want:    []time.Duration{400 * time.Second, 600 * time.Second, 600 * time.Second, 600 * time.Second, 600 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Schedule(ReconnectBackoff(tt.timeout), ReconnectAttempts)
			if len(got) != len(tt.want) {
				t.Fatalf("Schedule() returned %d delays; want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("delay[%d] = %v; want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
