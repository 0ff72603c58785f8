package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the demo host's settings: HTTP listen port, auth secret,
// gin mode, optional TLS material, and the knobs specific to wiring the
// engine into a process (mount path, room history depth, and which channel
// layer backs cross-process broadcast).
type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration

	EngineIOPath string
	RoomLogSize  int
	RedisAddr    string // empty means use the in-process channel layer
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:         3000,
		GinMode:      "release",
		TokenExpiry:  7 * 24 * time.Hour,
		EngineIOPath: "/socket.io/",
		RoomLogSize:  100,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("ENGINEIO_PATH"); raw != "" {
		cfg.EngineIOPath = raw
	}

	if raw := env.Getenv("ROOM_LOG_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return Config{}, fmt.Errorf("invalid ROOM_LOG_SIZE")
		}
		cfg.RoomLogSize = size
	}

	cfg.RedisAddr = env.Getenv("REDIS_ADDR")

	return cfg, nil
}
