package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestLimiter_RouteBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Route][]Budget{RouteUpload: {{Limit: 3, Window: time.Minute}}}, nil, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Check("1.2.3.4", RouteUpload).Allowed, "request %d", i+1)
	}

	d := l.Check("1.2.3.4", RouteUpload)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	// Rejections do not consume budget, and other clients are independent.
	assert.False(t, l.Check("1.2.3.4", RouteUpload).Allowed)
	assert.True(t, l.Check("5.6.7.8", RouteUpload).Allowed)

	clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Check("1.2.3.4", RouteUpload).Allowed, "after reset %d", i+1)
	}
	assert.False(t, l.Check("1.2.3.4", RouteUpload).Allowed)
}

func TestLimiter_ExactlyOneRejectionAtLimitPlusOne(t *testing.T) {
	clock := newFakeClock()
	const limit = 10
	l := New(map[Route][]Budget{RouteStats: {{Limit: limit, Window: time.Minute}}}, nil, WithClock(clock.Now))

	var rejected []int
	for i := 1; i <= limit+1; i++ {
		if !l.Check("client", RouteStats).Allowed {
			rejected = append(rejected, i)
		}
	}
	assert.Equal(t, []int{limit + 1}, rejected)
}

func TestLimiter_GlobalBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Route][]Budget{
		RouteFiles: {{Limit: 100, Window: time.Minute}},
		RouteStats: {{Limit: 10, Window: time.Minute}},
	}, []Budget{{Limit: 4, Window: time.Hour}}, WithClock(clock.Now))

	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.True(t, l.Check("c", RouteStats).Allowed)
	assert.True(t, l.Check("c", RouteStats).Allowed)

	d := l.Check("c", RouteFiles)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Minute)

	// Exempt routes bypass both budgets.
	assert.True(t, l.Check("c", RouteExempt).Allowed)
}

func TestLimiter_RejectionRefundsOtherBudgets(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Route][]Budget{RouteUpload: {{Limit: 1, Window: time.Hour}}},
		[]Budget{{Limit: 2, Window: time.Hour}}, WithClock(clock.Now))

	assert.True(t, l.Check("c", RouteUpload).Allowed)
	// Rejected by the route budget; the global token it reserved is returned.
	assert.False(t, l.Check("c", RouteUpload).Allowed)
	assert.False(t, l.Check("c", RouteUpload).Allowed)
	// One global token is still available for another route.
	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.False(t, l.Check("c", RouteFiles).Allowed)
}

func TestLimiter_MultipleWindows(t *testing.T) {
	clock := newFakeClock()
	l := New(nil, []Budget{{Limit: 5, Window: 24 * time.Hour}, {Limit: 2, Window: time.Hour}}, WithClock(clock.Now))

	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.False(t, l.Check("c", RouteFiles).Allowed)

	clock.Advance(time.Hour)
	assert.True(t, l.Check("c", RouteFiles).Allowed)
	assert.True(t, l.Check("c", RouteFiles).Allowed)

	clock.Advance(time.Hour)
	assert.True(t, l.Check("c", RouteFiles).Allowed)
	// Daily budget of 5 is spent even though the hourly one has a token left.
	d := l.Check("c", RouteFiles)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Hour)
}

func TestLimiter_Unbounded(t *testing.T) {
	l := New(map[Route][]Budget{RouteUpload: {{Limit: 0, Window: time.Hour}}}, nil)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Check("c", RouteUpload).Allowed)
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_ConcurrentNoLostUpdates(t *testing.T) {
	clock := newFakeClock()
	const limit = 100
	l := New(map[Route][]Budget{RouteFiles: {{Limit: limit, Window: time.Minute}}}, nil, WithClock(clock.Now))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if l.Check("c", RouteFiles).Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(limit), allowed.Load())
}

func TestLimiter_Evict(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Route][]Budget{RouteStats: {{Limit: 1, Window: time.Minute}}},
		[]Budget{{Limit: 10, Window: time.Hour}}, WithClock(clock.Now))

	l.Check("a", RouteStats)
	l.Check("b", RouteStats)
	assert.Equal(t, 4, l.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 2, l.Evict(), "route entries refilled after one minute")

	clock.Advance(time.Hour)
	assert.Equal(t, 2, l.Evict())
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Run(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Route][]Budget{RouteStats: {{Limit: 1, Window: time.Millisecond}}}, nil, WithClock(clock.Now))
	l.Check("a", RouteStats)
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
