// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port       int
	CORSOrigin string
	LogLevel   string
	LogFormat  string // "text" or "json"

	JWTSecret    string
	JWTAudience  string
	DevMode      bool
	AdminKeyHash string

	DatabaseURL string
	RedisURL    string

	CleanupGrace           time.Duration
	MatchmakingMinPlayers  int
	MatchmakingWait        time.Duration
	MatchmakingCheckPeriod time.Duration

	Game engine.Settings
}

// Load reads a .env file if one exists, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		Port:         p.int("PORT", 3001),
		CORSOrigin:   p.str("CORS_ORIGIN", "*"),
		LogLevel:     p.str("LOG_LEVEL", "info"),
		LogFormat:    p.str("LOG_FORMAT", "text"),
		JWTSecret:    p.str("JWT_SECRET", ""),
		JWTAudience:  p.str("JWT_AUDIENCE", "susbot"),
		DevMode:      p.bool("DEV_MODE", false),
		AdminKeyHash: p.str("ADMIN_KEY_HASH", ""),
		DatabaseURL:  p.str("DATABASE_URL", ""),
		RedisURL:     p.str("REDIS_URL", ""),

		CleanupGrace:           p.seconds("GAME_CLEANUP_GRACE", 30*time.Second),
		MatchmakingMinPlayers:  p.int("MATCHMAKING_MIN_PLAYERS", 8),
		MatchmakingWait:        p.seconds("MATCHMAKING_WAIT", 30*time.Second),
		MatchmakingCheckPeriod: time.Second,
	}

	g := engine.DefaultSettings()
	g.MaxPlayers = p.int("MAX_PLAYERS", g.MaxPlayers)
	g.KillCooldown = p.seconds("KILL_COOLDOWN_SEC", g.KillCooldown)
	g.DiscussionTime = p.seconds("DISCUSSION_TIME_SEC", g.DiscussionTime)
	g.VotingTime = p.seconds("VOTING_TIME_SEC", g.VotingTime)
	g.GameTimeLimit = p.seconds("GAME_TIME_LIMIT_SEC", g.GameTimeLimit)
	g.ConfirmEjects = p.bool("CONFIRM_EJECTS", g.ConfirmEjects)
	g.TickRateHz = p.int("TICK_RATE_HZ", g.TickRateHz)
	cfg.Game = g

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Game.MaxPlayers < engine.MinPlayers || c.Game.MaxPlayers > engine.MaxPlayers:
		return fmt.Errorf("MAX_PLAYERS must be between %d and %d, got %d", engine.MinPlayers, engine.MaxPlayers, c.Game.MaxPlayers)
	case c.MatchmakingMinPlayers < engine.MinPlayers || c.MatchmakingMinPlayers > c.Game.MaxPlayers:
		return fmt.Errorf("MATCHMAKING_MIN_PLAYERS must be between %d and MAX_PLAYERS, got %d", engine.MinPlayers, c.MatchmakingMinPlayers)
	case c.Game.TickRateHz <= 0:
		return fmt.Errorf("TICK_RATE_HZ must be positive, got %d", c.Game.TickRateHz)
	case c.JWTSecret == "" && !c.DevMode:
		return errors.New("JWT_SECRET is required unless DEV_MODE is set")
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info.", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// parser reads typed values and collects every malformed one.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// seconds accepts either a bare number of seconds or a Go duration string.
// The result must be positive.
func (p *parser) seconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var d time.Duration
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		d = time.Duration(n * float64(time.Second))
	} else if d, err = time.ParseDuration(v); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be positive, got %q", key, v))
		return def
	}
	return d
}
