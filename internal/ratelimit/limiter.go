// Package ratelimit tracks daily and monthly call budgets for the external
// APIs the pipeline depends on, and paces requests per service.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/threadjuice/threadjuice/internal/config"
)

// ErrQuotaExceeded is returned when a call would exceed a daily or monthly
// budget.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Usage reports a service's consumption in the current windows.
type Usage struct {
	Service      string `json:"service"`
	DailyUsed    int64  `json:"daily_used"`
	DailyLimit   int    `json:"daily_limit"`
	MonthlyUsed  int64  `json:"monthly_used"`
	MonthlyLimit int    `json:"monthly_limit"`
}

// Limiter enforces per-service quotas. A nil *Limiter allows everything.
type Limiter struct {
	counter Counter
	quotas  map[string]config.Quota
	now     func() time.Time

	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

// New creates a Limiter over counter with the given per-service quotas.
// Services without an entry are unlimited and untracked.
func New(counter Counter, quotas map[string]config.Quota) *Limiter {
	return &Limiter{
		counter: counter,
		quotas:  quotas,
		now:     time.Now,
		pacers:  make(map[string]*rate.Limiter),
	}
}

// Allow reserves one call for service in both the daily and the monthly
// window. When either window is full the reservation is undone and an error
// wrapping ErrQuotaExceeded is returned. Counter failures fail open.
func (l *Limiter) Allow(ctx context.Context, service string) error {
	if l == nil {
		return nil
	}
	q, ok := l.quotas[service]
	if !ok {
		return nil
	}

	now := l.now().UTC()
	dayKey, monthKey := windowKeys(service, now)

	day, err := l.counter.Incr(ctx, dayKey, dayTTL(now))
	if err != nil {
		zap.S().Warnw("ratelimit: counter unavailable, allowing call", "service", service, "err", err)
		return nil
	}
	if q.Daily > 0 && day > int64(q.Daily) {
		l.undo(ctx, dayKey)
		return fmt.Errorf("%w: %s daily limit %d", ErrQuotaExceeded, service, q.Daily)
	}

	month, err := l.counter.Incr(ctx, monthKey, monthTTL(now))
	if err != nil {
		zap.S().Warnw("ratelimit: counter unavailable, allowing call", "service", service, "err", err)
		return nil
	}
	if q.Monthly > 0 && month > int64(q.Monthly) {
		l.undo(ctx, monthKey)
		l.undo(ctx, dayKey)
		return fmt.Errorf("%w: %s monthly limit %d", ErrQuotaExceeded, service, q.Monthly)
	}

	if q.Daily > 0 && day == int64(float64(q.Daily)*0.9) {
		zap.S().Warnw("ratelimit: daily quota nearly exhausted", "service", service, "used", day, "limit", q.Daily)
	}
	return nil
}

// Wait blocks until the service's pacer admits a request, then reserves
// quota with Allow.
func (l *Limiter) Wait(ctx context.Context, service string) error {
	if l == nil {
		return nil
	}
	if p := l.pacer(service); p != nil {
		if err := p.Wait(ctx); err != nil {
			return fmt.Errorf("ratelimit: wait %s: %w", service, err)
		}
	}
	return l.Allow(ctx, service)
}

// Status returns usage for every configured service, sorted by name.
func (l *Limiter) Status(ctx context.Context) ([]Usage, error) {
	if l == nil {
		return nil, nil
	}
	now := l.now().UTC()

	services := make([]string, 0, len(l.quotas))
	for s := range l.quotas {
		services = append(services, s)
	}
	sort.Strings(services)

	out := make([]Usage, 0, len(services))
	for _, s := range services {
		dayKey, monthKey := windowKeys(s, now)
		day, err := l.counter.Get(ctx, dayKey)
		if err != nil {
			return nil, err
		}
		month, err := l.counter.Get(ctx, monthKey)
		if err != nil {
			return nil, err
		}
		q := l.quotas[s]
		out = append(out, Usage{
			Service:      s,
			DailyUsed:    day,
			DailyLimit:   q.Daily,
			MonthlyUsed:  month,
			MonthlyLimit: q.Monthly,
		})
	}
	return out, nil
}

func (l *Limiter) pacer(service string) *rate.Limiter {
	q, ok := l.quotas[service]
	if !ok || q.PerSecond <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pacers[service]
	if !ok {
		p = rate.NewLimiter(rate.Limit(q.PerSecond), 1)
		l.pacers[service] = p
	}
	return p
}

func (l *Limiter) undo(ctx context.Context, key string) {
	if err := l.counter.Decr(ctx, key); err != nil {
		zap.S().Warnw("ratelimit: undo reservation", "key", key, "err", err)
	}
}

func windowKeys(service string, now time.Time) (day, month string) {
	return "quota:" + service + ":day:" + now.Format("2006-01-02"),
		"quota:" + service + ":month:" + now.Format("2006-01")
}

// dayTTL keeps a daily key one day past its window.
func dayTTL(now time.Time) time.Duration {
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return end.Sub(now) + 24*time.Hour
}

// monthTTL keeps a monthly key one day past its window.
func monthTTL(now time.Time) time.Duration {
	end := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return end.Sub(now) + 24*time.Hour
}
