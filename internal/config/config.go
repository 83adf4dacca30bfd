package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. Session defaults mirror the original
// deployment: 15 day absolute lifetime, 24h idle timeout, 1h reset
// tokens and 24h email-validation tokens.
type Config struct {
	Env            string        // application environment (dev/test/prod)
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	JWTSecret      string        // secret used to sign session JWTs
	BcryptCost     int           // bcrypt cost for password hashing
	SessionMaxLife time.Duration // absolute session lifetime
	SessionIdle    time.Duration // idle timeout between validated accesses
	ResetTokenTTL  time.Duration // password-reset token lifetime
	SignupTokenTTL time.Duration // email-validation token lifetime
	TrustedProxies []string      // CIDRs allowed to set X-Forwarded-For
	FrontendURL    string        // base URL embedded in token emails
}

// Load reads configuration from the environment. A .env file is loaded
// first when present so local development needs no exported variables;
// real deployments set them directly. Required variables are enforced by
// must() and missing values abort startup.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8080"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		SessionMaxLife: envDur("SESSION_MAX_LIFETIME", 15*24*time.Hour),
		SessionIdle:    envDur("SESSION_IDLE_TIMEOUT", 24*time.Hour),
		ResetTokenTTL:  envDur("RESET_TOKEN_TTL", time.Hour),
		SignupTokenTTL: envDur("SIGNUP_TOKEN_TTL", 24*time.Hour),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		FrontendURL:    envStr("FRONTEND_URL", "http://localhost:8080"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
