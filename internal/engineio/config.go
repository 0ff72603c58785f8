package engineio

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the three global, immutable timing/size knobs named in the
// Engine.IO spec. It is read once at startup and passed by value to every
// downstream component — never re-read.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int64
}

// Env abstracts environment lookup for testability, mirroring the teacher's
// config.Env/osEnv split.
type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 25000 * time.Millisecond,
		PingTimeout:  20000 * time.Millisecond,
		MaxPayload:   1000000,
	}
}

// LoadConfig reads SIO_ENGINEIO_* from the real process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

// LoadConfigFromEnv reads SIO_ENGINEIO_PING_INTERVAL_MS,
// SIO_ENGINEIO_PING_TIMEOUT_MS and SIO_ENGINEIO_MAX_PAYLOAD_BYTES, falling
// back to spec.md §6's defaults for anything unset.
func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := DefaultConfig()

	if raw := env.Getenv("SIO_ENGINEIO_PING_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("engineio: invalid SIO_ENGINEIO_PING_INTERVAL_MS")
		}
		cfg.PingInterval = time.Duration(ms) * time.Millisecond
	}

	if raw := env.Getenv("SIO_ENGINEIO_PING_TIMEOUT_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("engineio: invalid SIO_ENGINEIO_PING_TIMEOUT_MS")
		}
		cfg.PingTimeout = time.Duration(ms) * time.Millisecond
	}

	if raw := env.Getenv("SIO_ENGINEIO_MAX_PAYLOAD_BYTES"); raw != "" {
		bytes, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || bytes <= 0 {
			return Config{}, fmt.Errorf("engineio: invalid SIO_ENGINEIO_MAX_PAYLOAD_BYTES")
		}
		cfg.MaxPayload = bytes
	}

	return cfg, nil
}
