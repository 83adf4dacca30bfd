// Package limiter enforces fixed-window request ceilings in Redis so
// the counts are shared by every serving process. Each check is a single
// atomic INCR(+expiry) per declared limit; the comparison against the
// ceiling is therefore linearizable: when one slot remains, two
// concurrent requests cannot both be let through.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rm-info/finding-memos/internal/config"
)

// incrScript bumps the window counter and sets its expiry when the
// counter is created. Running it as a script keeps INCR and PEXPIRE
// atomic, so an increment can never leak a counter without TTL.
var incrScript = redis.NewScript(`
	local c = redis.call('INCR', KEYS[1])
	if c == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return c
`)

// Decision is the outcome of a rate-limit check. When Allowed is false,
// Scope names the scope that denied and RetryAfter says when the window
// rolls over. Remaining and Limit describe the tightest declared limit
// and feed the X-RateLimit-* response headers.
type Decision struct {
	Allowed    bool
	Scope      string
	RetryAfter time.Duration
	Limit      int64
	Remaining  int64
}

// Limiter checks client/scope pairs against the configured ceilings.
type Limiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
	now func() time.Time
}

func New(rdb *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Check increments the counters for the global scope plus every named
// route scope and compares them against their limits; all must pass.
// Increments that land before a denial are not rolled back
// (at-least-once counting; undercounting would weaken the protection).
//
// When Redis is unreachable the per-scope failure policy decides the
// outcome: fail-closed scopes deny, fail-open scopes allow. The store
// error is returned alongside the policy decision so callers can log it.
func (l *Limiter) Check(ctx context.Context, clientID string, routeScopes ...string) (Decision, error) {
	d := Decision{Allowed: true, Limit: -1, Remaining: -1}
	if !l.cfg.Enabled {
		return d, nil
	}

	names := append([]string{config.ScopeGlobal}, routeScopes...)
	now := l.now()
	var storeErr error
	for _, name := range names {
		scope, ok := l.cfg.Scope(name)
		if !ok {
			continue
		}
		for _, lim := range scope.Limits {
			windowID := now.UnixNano() / int64(lim.Window)
			key := fmt.Sprintf("%s:%s:%s:%d", l.cfg.Prefix, scope.Name, clientID, windowID)

			count, err := incrScript.Run(ctx, l.rdb, []string{key}, lim.Window.Milliseconds()).Int64()
			if err != nil {
				if scope.FailClosed {
					return Decision{Allowed: false, Scope: scope.Name, RetryAfter: lim.Window}, err
				}
				// Fail open for this scope, but keep going: a later
				// scope may be fail-closed and must still deny.
				storeErr = err
				continue
			}

			if remaining := lim.Max - count; d.Remaining < 0 || remaining < d.Remaining {
				d.Limit = lim.Max
				d.Remaining = remaining
				if d.Remaining < 0 {
					d.Remaining = 0
				}
			}
			if count > lim.Max {
				windowEnd := time.Unix(0, (windowID+1)*int64(lim.Window))
				return Decision{
					Allowed:    false,
					Scope:      scope.Name,
					RetryAfter: windowEnd.Sub(now),
					Limit:      lim.Max,
					Remaining:  0,
				}, nil
			}
		}
	}
	return d, storeErr
}
