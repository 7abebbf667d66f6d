package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the business tunables. Infrastructure knobs (bind
// address, DB path, pool size) stay as flags in cmd.
type Config struct {
	MaxPartySize  int
	SearchLimit   int
	MaxDeliveries int

	VisibilityTimeout time.Duration
	PollWait          time.Duration

	// Optional allow-lists; empty disables the check.
	AllowedCuisines  []string
	AllowedLocations []string

	SearchURL     string
	SearchIndex   string
	SearchTimeout time.Duration

	NotifyURL     string
	NotifyFrom    string
	NotifyTimeout time.Duration

	RecoverCron     string
	NotifyRetryCron string
}

func FromEnv() (Config, error) {
	cfg := Config{
		SearchURL:        strings.TrimSpace(os.Getenv("SEARCH_URL")),
		SearchIndex:      envDefault("SEARCH_INDEX", "restaurants"),
		NotifyURL:        strings.TrimSpace(os.Getenv("NOTIFY_URL")),
		NotifyFrom:       envDefault("NOTIFY_FROM", "concierge@localhost"),
		RecoverCron:      envDefault("RECOVER_CRON", "* * * * *"),
		NotifyRetryCron:  envDefault("NOTIFY_RETRY_CRON", "*/5 * * * *"),
		AllowedCuisines:  envList("ALLOWED_CUISINES"),
		AllowedLocations: envList("ALLOWED_LOCATIONS"),
	}

	var err error
	if cfg.MaxPartySize, err = envInt("MAX_PARTY_SIZE", 20); err != nil {
		return cfg, err
	}
	if cfg.SearchLimit, err = envInt("SEARCH_LIMIT", 5); err != nil {
		return cfg, err
	}
	if cfg.MaxDeliveries, err = envInt("MAX_DELIVERIES", 3); err != nil {
		return cfg, err
	}
	if cfg.VisibilityTimeout, err = envDuration("VISIBILITY_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PollWait, err = envDuration("POLL_WAIT", time.Second); err != nil {
		return cfg, err
	}
	if cfg.SearchTimeout, err = envDuration("SEARCH_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.NotifyTimeout, err = envDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}

	if cfg.SearchURL == "" {
		return cfg, fmt.Errorf("SEARCH_URL is required")
	}
	if cfg.NotifyURL == "" {
		return cfg, fmt.Errorf("NOTIFY_URL is required")
	}
	if cfg.MaxPartySize <= 0 {
		return cfg, fmt.Errorf("MAX_PARTY_SIZE must be positive (got %d)", cfg.MaxPartySize)
	}
	if cfg.MaxDeliveries <= 0 {
		return cfg, fmt.Errorf("MAX_DELIVERIES must be positive (got %d)", cfg.MaxDeliveries)
	}
	return cfg, nil
}

func envDefault(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func envDuration(k string, d time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return parsed, nil
}

func envList(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
