package governor

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
)

func testConfig() environments.GovernorConfig {
	return environments.GovernorConfig{
		PerMinuteCap:   20,
		DailyCap:       100,
		RestEvery:      5,
		RestMin:        2 * time.Minute,
		RestMax:        5 * time.Minute,
		JitterMin:      2 * time.Second,
		JitterMax:      8 * time.Second,
		UnlimitedDelay: 500 * time.Millisecond,
		ErrorMaxLength: 500,
	}
}

// newTestGovernor returns a governor with a controllable clock.
func newTestGovernor(cfg environments.GovernorConfig) (*Governor, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGovernor(cfg)
	g.now = func() time.Time { return now }
	g.rand = rand.New(rand.NewSource(1))
	return g, &now
}

func TestCheckRate_BlocksAtCapWithRemainingWait(t *testing.T) {
	g, now := newTestGovernor(testConfig())

	for i := 0; i < 20; i++ {
		dec := g.CheckRate("ch-1")
		if !dec.Allowed {
			t.Fatalf("send %d unexpectedly blocked", i+1)
		}
		g.RecordSend("ch-1")
	}

	// 21st send inside the same window must wait until the window resets.
	*now = now.Add(15 * time.Second)
	dec := g.CheckRate("ch-1")
	if dec.Allowed {
		t.Fatalf("expected 21st send to be blocked")
	}
	if dec.Wait != 45*time.Second {
		t.Fatalf("expected wait of 45s, got %v", dec.Wait)
	}
}

func TestCheckRate_WindowRollover(t *testing.T) {
	g, now := newTestGovernor(testConfig())

	for i := 0; i < 20; i++ {
		g.RecordSend("ch-1")
	}

	if dec := g.CheckRate("ch-1"); dec.Allowed {
		t.Fatalf("expected channel to be at cap")
	}

	*now = now.Add(61 * time.Second)
	if dec := g.CheckRate("ch-1"); !dec.Allowed {
		t.Fatalf("expected new window to allow sends, wait=%v", dec.Wait)
	}
}

func TestCheckRate_UnlimitedChannelBypasses(t *testing.T) {
	g, _ := newTestGovernor(testConfig())
	g.SetChannelLimits("ch-free", Limits{UseLimits: false})

	for i := 0; i < 100; i++ {
		g.RecordSend("ch-free")
	}

	if dec := g.CheckRate("ch-free"); !dec.Allowed {
		t.Fatalf("unlimited channel should never be rate blocked")
	}
	if dec := g.CheckDaily("ch-free"); !dec.Allowed {
		t.Fatalf("unlimited channel should never hit the daily cap")
	}
	if g.CheckRest("ch-free") {
		t.Fatalf("unlimited channel should never owe a rest")
	}

	// Minimal anti-burst pacing still applies.
	if delay := g.PacingDelay("ch-free"); delay != 500*time.Millisecond {
		t.Fatalf("expected fixed pacing delay 500ms, got %v", delay)
	}
}

func TestCheckDaily_CapAndDayRollover(t *testing.T) {
	cfg := testConfig()
	cfg.DailyCap = 3
	g, now := newTestGovernor(cfg)

	for i := 0; i < 3; i++ {
		if dec := g.CheckDaily("ch-1"); !dec.Allowed {
			t.Fatalf("send %d unexpectedly capped", i+1)
		}
		g.RecordSend("ch-1")
	}

	dec := g.CheckDaily("ch-1")
	if dec.Allowed {
		t.Fatalf("expected daily cap to block the 4th send")
	}
	if dec.Reason == "" {
		t.Fatalf("expected a reason for the daily stop")
	}

	// Next calendar day resets the counter.
	*now = now.Add(24 * time.Hour)
	if dec := g.CheckDaily("ch-1"); !dec.Allowed {
		t.Fatalf("expected counter to reset on day boundary")
	}
}

func TestSeedDaily_RestoresCountAfterRestart(t *testing.T) {
	cfg := testConfig()
	cfg.DailyCap = 10
	g, _ := newTestGovernor(cfg)

	g.SeedDaily("ch-1", 10)

	if dec := g.CheckDaily("ch-1"); dec.Allowed {
		t.Fatalf("expected seeded channel to already be at its daily cap")
	}
}

func TestCheckRest_FiresOnceAtThreshold(t *testing.T) {
	g, _ := newTestGovernor(testConfig())

	for i := 0; i < 5; i++ {
		if g.CheckRest("ch-1") {
			t.Fatalf("rest owed too early, after %d sends", i)
		}
		g.RecordSend("ch-1")
	}

	if !g.CheckRest("ch-1") {
		t.Fatalf("expected rest to be owed after 5 consecutive sends")
	}

	// The claim is one-shot: a second caller must not re-trigger it.
	if g.CheckRest("ch-1") {
		t.Fatalf("rest claimed twice")
	}

	g.FinishRest("ch-1")

	if g.CheckRest("ch-1") {
		t.Fatalf("rest owed again right after finishing one")
	}
}

func TestCheckRest_ConcurrentClaimIsExclusive(t *testing.T) {
	g, _ := newTestGovernor(testConfig())

	for i := 0; i < 5; i++ {
		g.RecordSend("ch-1")
	}

	var mu sync.Mutex
	claims := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.CheckRest("ch-1") {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("expected exactly one goroutine to claim the rest, got %d", claims)
	}
}

func TestRestDuration_WithinConfiguredRange(t *testing.T) {
	g, _ := newTestGovernor(testConfig())

	for i := 0; i < 50; i++ {
		d := g.RestDuration()
		if d < 2*time.Minute || d > 5*time.Minute {
			t.Fatalf("rest duration %v outside [2m,5m]", d)
		}
	}
}

func TestPacingDelay_JitterWithinRange(t *testing.T) {
	g, _ := newTestGovernor(testConfig())

	for i := 0; i < 50; i++ {
		d := g.PacingDelay("ch-1")
		if d < 2*time.Second || d > 8*time.Second {
			t.Fatalf("jitter delay %v outside [2s,8s]", d)
		}
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	g, _ := newTestGovernor(testConfig())

	for i := 0; i < 20; i++ {
		g.RecordSend("ch-busy")
	}

	if dec := g.CheckRate("ch-busy"); dec.Allowed {
		t.Fatalf("expected busy channel to be blocked")
	}
	if dec := g.CheckRate("ch-idle"); !dec.Allowed {
		t.Fatalf("expected idle channel to be unaffected")
	}
}
