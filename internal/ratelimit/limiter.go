package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Route is the logical endpoint class a request is budgeted against.
type Route string

const (
	RouteUpload Route = "upload"
	RouteFiles  Route = "files"
	RouteStats  Route = "stats"
	// RouteExempt is never limited and does not count toward the global budget.
	RouteExempt Route = "exempt"

	routeGlobal Route = "global"
)

// Budget allows Limit requests per Window.
type Budget struct {
	Limit  int
	Window time.Duration
}

// Decision is the verdict for a single request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type key struct {
	client string
	route  Route
}

// entry is the window state of one (client, route) pair.
type entry struct {
	buckets  []*rate.Limiter
	lastSeen time.Time
	// idle is the time after which every bucket is full again, making the entry
	// indistinguishable from a fresh one.
	idle time.Duration
}

// Limiter is the admission control table. Each budget is a token bucket holding
// Limit tokens and refilling one token every Window/Limit, so a full burst of
// Limit requests is admitted at once and the budget is fully restored one Window
// after it was drained. A request must pass its route budgets and the global
// budgets; when any rejects, tokens taken from the others are returned.
//
// Check performs no I/O and never blocks beyond a short critical section.
type Limiter struct {
	mu      sync.Mutex
	budgets map[Route][]Budget
	global  []Budget
	entries map[key]*entry
	now     func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter from per-route budgets and the global per-client budgets.
// Routes without budgets are only subject to the global ones.
func New(budgets map[Route][]Budget, global []Budget, opts ...Option) *Limiter {
	l := &Limiter{
		budgets: make(map[Route][]Budget, len(budgets)),
		global:  validBudgets(global),
		entries: make(map[key]*entry),
		now:     time.Now,
	}
	for r, b := range budgets {
		l.budgets[r] = validBudgets(b)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or rejects one request from client on route.
func (l *Limiter) Check(client string, route Route) Decision {
	if route == RouteExempt {
		return Decision{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var buckets []*rate.Limiter
	if e := l.entry(client, route, l.budgets[route], now); e != nil {
		buckets = append(buckets, e.buckets...)
	}
	if e := l.entry(client, routeGlobal, l.global, now); e != nil {
		buckets = append(buckets, e.buckets...)
	}

	reservations := make([]*rate.Reservation, 0, len(buckets))
	var retry time.Duration
	for _, b := range buckets {
		r := b.ReserveN(now, 1)
		reservations = append(reservations, r)
		if d := r.DelayFrom(now); d > retry {
			retry = d
		}
	}
	if retry > 0 {
		for _, r := range reservations {
			r.CancelAt(now)
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// Evict drops entries whose buckets have fully refilled and returns how many
// were removed. Evicting such an entry does not change any future verdict.
func (l *Limiter) Evict() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) >= e.idle {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Run calls Evict every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Evict()
		}
	}
}

// Len returns the number of tracked (client, route) pairs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// entry returns the state for (client, route), creating it lazily. Callers hold l.mu.
func (l *Limiter) entry(client string, route Route, budgets []Budget, now time.Time) *entry {
	if len(budgets) == 0 {
		return nil
	}
	k := key{client: client, route: route}
	e, ok := l.entries[k]
	if !ok {
		e = &entry{buckets: make([]*rate.Limiter, 0, len(budgets))}
		for _, b := range budgets {
			e.buckets = append(e.buckets, rate.NewLimiter(rate.Every(b.Window/time.Duration(b.Limit)), b.Limit))
			if b.Window > e.idle {
				e.idle = b.Window
			}
		}
		l.entries[k] = e
	}
	e.lastSeen = now
	return e
}

func validBudgets(in []Budget) []Budget {
	out := make([]Budget, 0, len(in))
	for _, b := range in {
		if b.Limit > 0 && b.Window > 0 {
			out = append(out, b)
		}
	}
	return out
}
