package config

import (
	"path"
	"time"

	"github.com/dinesync/dinesync/internal/modules/env"

	"go.uber.org/zap"
)

const (
	PortEnv        = "PORT"
	DatabaseUrlEnv = "DATABASE_URL"
	RedisUrlEnv    = "REDIS_URL"
	RootPathEnv    = "ROOT_PATH"

	SessionDurationEnv        = "SESSION_DURATION"
	SessionExpiryThresholdEnv = "SESSION_EXPIRY_THRESHOLD"
	SessionCleanupIntervalEnv = "SESSION_CLEANUP_INTERVAL"
	ActivityDebounceEnv       = "ACTIVITY_DEBOUNCE"
	ActivityPulseEnv          = "ACTIVITY_PULSE"
	ActivityHeartbeatEnv      = "ACTIVITY_HEARTBEAT"
)

// SessionPolicy carries the tunables governing session lifetime and the
// activity pipeline. Defaults apply when the environment does not override.
type SessionPolicy struct {
	// DefaultDuration is the lifetime of a freshly created session.
	DefaultDuration time.Duration

	// ExpiryThreshold is the window before expires_at during which a
	// session reads as expiring_soon.
	ExpiryThreshold time.Duration

	// DefaultExtensionMinutes is applied when an extend request omits
	// the minutes value.
	DefaultExtensionMinutes int

	// CleanupInterval is how often the sweeper finalizes expired sessions.
	CleanupInterval time.Duration

	ActivityDebounce  time.Duration
	ActivityPulse     time.Duration
	ActivityHeartbeat time.Duration
}

type Config struct {
	Logger *zap.Logger

	Port           int
	DatabaseURL    string
	RedisURL       string
	MigrationsPath string

	Policy SessionPolicy
}

func Load() (Config, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return Config{}, err
	}

	port := env.MustGetInt(PortEnv)
	dbURL := env.MustGetString(DatabaseUrlEnv)
	redisURL := env.MustGetString(RedisUrlEnv)

	rootPath := env.MustGetString(RootPathEnv)
	migrationsPath := path.Join(rootPath, "db", "migrations")

	policy := SessionPolicy{
		DefaultDuration:         env.GetDurationOrDefault(SessionDurationEnv, 2*time.Hour),
		ExpiryThreshold:         env.GetDurationOrDefault(SessionExpiryThresholdEnv, 30*time.Minute),
		DefaultExtensionMinutes: 60,
		CleanupInterval:         env.GetDurationOrDefault(SessionCleanupIntervalEnv, 5*time.Minute),
		ActivityDebounce:        env.GetDurationOrDefault(ActivityDebounceEnv, 5*time.Second),
		ActivityPulse:           env.GetDurationOrDefault(ActivityPulseEnv, 2*time.Minute),
		ActivityHeartbeat:       env.GetDurationOrDefault(ActivityHeartbeatEnv, 30*time.Second),
	}

	return Config{
		Logger:         logger,
		Port:           port,
		DatabaseURL:    dbURL,
		RedisURL:       redisURL,
		MigrationsPath: migrationsPath,
		Policy:         policy,
	}, nil
}
