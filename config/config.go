package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Token string `envconfig:"DISCORD_TOKEN" required:"true"`
	// Test guild ID. If empty, slash commands are registered globally.
	GuildID  string `envconfig:"GUILD_ID"`
	DBPath   string `envconfig:"DB_PATH" default:"tempo.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`
	Lookahead       time.Duration `envconfig:"LOOKAHEAD" default:"15m"`
	EventExpiry     time.Duration `envconfig:"EVENT_EXPIRY" default:"24h"`
	DeliveryWorkers int           `envconfig:"DELIVERY_WORKERS" default:"8"`
	SendRate        int           `envconfig:"SEND_RATE" default:"5"` // messages per second

	// Keyword replies need the privileged message content intent.
	AutoReply bool `envconfig:"AUTO_REPLY" default:"false"`
}

// Load reads environment variables into Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the token and log level, and that the scheduling values
// make sense together.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN must not be empty")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.TickInterval < time.Second {
		return fmt.Errorf("TICK_INTERVAL must be at least 1s, got %s", c.TickInterval)
	}
	if c.Lookahead < c.TickInterval {
		return fmt.Errorf(
			"LOOKAHEAD (%s) must not be shorter than TICK_INTERVAL (%s)",
			c.Lookahead,
			c.TickInterval,
		)
	}
	if c.EventExpiry < 0 {
		return fmt.Errorf("EVENT_EXPIRY must not be negative, got %s", c.EventExpiry)
	}
	if c.DeliveryWorkers < 1 {
		return fmt.Errorf("DELIVERY_WORKERS must be positive, got %d", c.DeliveryWorkers)
	}
	if c.SendRate < 1 {
		return fmt.Errorf("SEND_RATE must be positive, got %d", c.SendRate)
	}
	return nil
}
