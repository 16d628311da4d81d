// Package governor holds the per-channel send-state behind four operations:
// rate check, daily check, rest check and send recording. The counters are
// process-local; after a restart only the daily count is reseeded from the
// row store, the partially elapsed minute window is accepted as lost.
package governor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
)

// Limits is the effective policy for one channel. Zero caps mean unlimited;
// UseLimits=false bypasses every check but keeps the minimal pacing delay.
type Limits struct {
	UseLimits bool
	PerMinute int
	PerDay    int
	RestEvery int
}

// channelState is created lazily on the first check for a channel and only
// ever touched while holding the governor mutex.
type channelState struct {
	limits Limits

	windowStart time.Time
	windowCount int

	dayKey   string
	dayCount int

	consecutive int
	resting     bool
	lastRestAt  time.Time
}

type RateDecision struct {
	Allowed bool
	Wait    time.Duration
}

type DailyDecision struct {
	Allowed bool
	Reason  string
}

type Governor struct {
	mu       sync.Mutex
	cfg      environments.GovernorConfig
	channels map[string]*channelState

	// injectable for tests
	now  func() time.Time
	rand *rand.Rand
}

func NewGovernor(cfg environments.GovernorConfig) *Governor {
	return &Governor{
		cfg:      cfg,
		channels: make(map[string]*channelState),
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Governor) defaultLimits() Limits {
	return Limits{
		UseLimits: true,
		PerMinute: g.cfg.PerMinuteCap,
		PerDay:    g.cfg.DailyCap,
		RestEvery: g.cfg.RestEvery,
	}
}

func (g *Governor) state(channelID string) *channelState {
	st, ok := g.channels[channelID]
	if !ok {
		st = &channelState{limits: g.defaultLimits()}
		g.channels[channelID] = st
	}
	return st
}

// SetChannelLimits applies a channel's own settings on top of the defaults.
// Called whenever a fresh channel state is fetched from the gateway.
func (g *Governor) SetChannelLimits(channelID string, limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	st.limits = limits
}

// SeedDaily restores the daily counter after a restart from the number of
// successful sends already recorded for the channel today.
func (g *Governor) SeedDaily(channelID string, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	st.dayKey = g.dayKey(g.now())
	st.dayCount = count
}

func (g *Governor) dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (g *Governor) rollWindows(st *channelState, now time.Time) {
	if st.windowStart.IsZero() || now.Sub(st.windowStart) >= time.Minute {
		st.windowStart = now
		st.windowCount = 0
	}

	if key := g.dayKey(now); key != st.dayKey {
		st.dayKey = key
		st.dayCount = 0
	}
}

// CheckRate reports whether the channel may send within its rolling-minute
// cap. When the cap is hit the caller sleeps the returned wait and asks
// again; this is backpressure, never a job failure.
func (g *Governor) CheckRate(channelID string) RateDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	now := g.now()
	g.rollWindows(st, now)

	if !st.limits.UseLimits || st.limits.PerMinute <= 0 {
		return RateDecision{Allowed: true}
	}

	if st.windowCount < st.limits.PerMinute {
		return RateDecision{Allowed: true}
	}

	wait := st.windowStart.Add(time.Minute).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}

	return RateDecision{Allowed: false, Wait: wait}
}

// CheckDaily reports whether the channel is still under its daily cap.
// A negative answer is a policy stop for the whole contract.
func (g *Governor) CheckDaily(channelID string) DailyDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	g.rollWindows(st, g.now())

	if !st.limits.UseLimits || st.limits.PerDay <= 0 {
		return DailyDecision{Allowed: true}
	}

	if st.dayCount < st.limits.PerDay {
		return DailyDecision{Allowed: true}
	}

	return DailyDecision{
		Allowed: false,
		Reason:  fmt.Sprintf("daily cap of %d messages reached for channel %s", st.limits.PerDay, channelID),
	}
}

// CheckRest claims the rest slot when the channel has sent RestEvery
// messages since its last pause. The claim is one-shot: while a worker is
// resting, concurrent callers get false and proceed normally.
func (g *Governor) CheckRest(channelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)

	if !st.limits.UseLimits || st.limits.RestEvery <= 0 || st.resting {
		return false
	}

	if st.consecutive < st.limits.RestEvery {
		return false
	}

	st.resting = true
	return true
}

// FinishRest clears the consecutive counter after the claimed rest elapsed.
func (g *Governor) FinishRest(channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	st.consecutive = 0
	st.resting = false
	st.lastRestAt = g.now()
}

// RecordSend bumps every counter after a channel accepted a message.
func (g *Governor) RecordSend(channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	g.rollWindows(st, g.now())

	st.windowCount++
	st.dayCount++
	st.consecutive++
}

// RestDuration draws the randomized pause length for a claimed rest.
func (g *Governor) RestDuration() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.durationBetween(g.cfg.RestMin, g.cfg.RestMax)
}

// PacingDelay is the post-send delay: jitter within the configured range
// when limits apply, a fixed minimal anti-burst delay otherwise.
func (g *Governor) PacingDelay(channelID string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(channelID)
	if !st.limits.UseLimits {
		return g.cfg.UnlimitedDelay
	}

	return g.durationBetween(g.cfg.JitterMin, g.cfg.JitterMax)
}

func (g *Governor) durationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(g.rand.Int63n(int64(max-min)))
}
