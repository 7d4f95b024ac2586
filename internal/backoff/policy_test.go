package backoff

import (
	"testing"
	"time"
)

func TestPolicy_DelayGrowth(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 30 * time.Second, Factor: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tc := range cases {
		got := p.delayWithRand(tc.attempt, 0)
		if got != tc.want {
			t.Errorf("attempt %d: delay = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 10 * time.Second, Factor: 2, Jitter: 0.5}

	got := p.delayWithRand(20, 0.99)
	if got != 10*time.Second {
		t.Errorf("delay = %v, want capped at %v", got, 10*time.Second)
	}
}

func TestPolicy_JitterAddsFraction(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.2}

	got := p.delayWithRand(1, 0.5)
	want := time.Second + 100*time.Millisecond // 1s + 1s*0.2*0.5
	if got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
}

func TestPolicy_AttemptZeroTreatedAsFirst(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2}

	if got := p.delayWithRand(0, 0); got != time.Second {
		t.Errorf("delay = %v, want %v", got, time.Second)
	}
}

func TestReconnect_FloorIsOneSecond(t *testing.T) {
	p := Reconnect()
	if p.Initial < time.Second {
		t.Errorf("reconnect initial = %v, want >= 1s", p.Initial)
	}
}
