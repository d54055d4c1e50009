package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	EngineBaseURL   string
	EngineTimeout   time.Duration
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	WebSocketOrigin string
	ContinuousSyms  string
	InternalToken   string
	LogLevel        string
}

func Load() (Config, error) {
	// .env is optional; real env always wins.
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.EngineBaseURL = os.Getenv("ENGINE_BASE_URL")
	if c.EngineBaseURL == "" {
		missing = append(missing, "ENGINE_BASE_URL")
	}
	engineTimeout := os.Getenv("ENGINE_TIMEOUT")
	if engineTimeout == "" {
		c.EngineTimeout = 15 * time.Second
	} else {
		d, err := time.ParseDuration(engineTimeout)
		if err != nil {
			return c, errors.New("invalid ENGINE_TIMEOUT")
		}
		c.EngineTimeout = d
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 24 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL")
		}
		c.JWTTTL = d
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.ContinuousSyms = os.Getenv("CONTINUOUS_SYMBOLS")
	c.InternalToken = os.Getenv("INTERNAL_TOKEN")
	c.LogLevel = os.Getenv("LOG_LEVEL")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
