package config

import (
	"log"
	"strconv"
	"strings"
	"time"
)

// Scope names recognized by the rate limiter. ScopeGlobal is evaluated
// for every request in addition to any route-specific scope.
const (
	ScopeGlobal           = "global"
	ScopeSignIn           = "sign-in"
	ScopeSignUp           = "sign-up"
	ScopeForgotPassword   = "forgot-password"
	ScopeResetPassword    = "reset-password"
	ScopeResendValidation = "resend-validation"
)

// RateLimit is a single ceiling: at most Max requests per fixed Window.
type RateLimit struct {
	Max    int64
	Window time.Duration
}

// RateScope is a named bucket shared by one or more routes. A scope may
// declare several limits (e.g. per-minute and per-hour); a request must
// pass all of them. FailClosed decides what happens when the counter
// store is unreachable: deny (true) or let the request through (false).
type RateScope struct {
	Name       string
	Limits     []RateLimit
	FailClosed bool
}

// RateLimitConfig carries the limiter settings: the global scope applied
// to every request plus the per-route scopes.
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Scopes  map[string]RateScope
}

// Scope returns the named scope, or a zero scope with ok=false when the
// name is unknown.
func (c RateLimitConfig) Scope(name string) (RateScope, bool) {
	s, ok := c.Scopes[name]
	return s, ok
}

// LoadRateLimitConfig builds the limiter configuration. Defaults follow
// the original deployment: a global 200/day + 50/hour ceiling, tight
// limits on the credential endpoints. Each scope can be overridden with
// RATE_LIMIT_<SCOPE> (dashes as underscores), e.g.
// RATE_LIMIT_SIGN_IN="5/1m" or RATE_LIMIT_GLOBAL="200/24h,50/1h".
// Authentication scopes fail closed when Redis is unreachable; losing
// brute-force protection on credential endpoints is worse than a
// temporary lockout. The global scope fails open so a counter-store
// outage does not take the whole API down.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envStr("RATE_LIMIT_ENABLED", "true") == "true",
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Scopes:  map[string]RateScope{},
	}

	defaults := []RateScope{
		{Name: ScopeGlobal, Limits: []RateLimit{{200, 24 * time.Hour}, {50, time.Hour}}, FailClosed: false},
		{Name: ScopeSignIn, Limits: []RateLimit{{5, time.Minute}}, FailClosed: true},
		{Name: ScopeSignUp, Limits: []RateLimit{{3, time.Hour}}, FailClosed: true},
		{Name: ScopeForgotPassword, Limits: []RateLimit{{3, time.Hour}}, FailClosed: true},
		{Name: ScopeResetPassword, Limits: []RateLimit{{10, time.Hour}}, FailClosed: true},
		{Name: ScopeResendValidation, Limits: []RateLimit{{3, time.Hour}}, FailClosed: true},
	}
	for _, s := range defaults {
		key := "RATE_LIMIT_" + strings.ToUpper(strings.ReplaceAll(s.Name, "-", "_"))
		if v := envStr(key, ""); v != "" {
			s.Limits = parseLimits(key, v)
		}
		cfg.Scopes[s.Name] = s
	}
	return cfg
}

// parseLimits parses "max/window" pairs separated by commas, e.g.
// "200/24h,50/1h". Malformed values abort startup; silently running with
// wrong limits would be worse.
func parseLimits(key, v string) []RateLimit {
	var out []RateLimit
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		fields := strings.SplitN(part, "/", 2)
		if len(fields) != 2 {
			log.Fatalf("invalid rate limit for %s: %q", key, part)
		}
		max, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil || max < 1 {
			log.Fatalf("invalid rate limit max for %s: %q", key, part)
		}
		window, err := time.ParseDuration(strings.TrimSpace(fields[1]))
		if err != nil || window <= 0 {
			log.Fatalf("invalid rate limit window for %s: %q", key, part)
		}
		out = append(out, RateLimit{Max: max, Window: window})
	}
	return out
}
