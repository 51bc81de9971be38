// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials (the Discord bot token, one YouTube auth method) are
// checked via the Validate* helpers at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Discord
	DiscordBotToken   string
	DiscordAPIBase    string
	DiscordGatewayURL string
	CommandPrefix     string

	// YouTube (API key, or the OAuth trio)
	YTAPIKey       string
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string

	// Twitch chat source; empty credentials fall back to an anonymous
	// read-only connection.
	TwitchBotUsername string
	TwitchOAuthToken  string

	// Relay tuning
	DefaultPrefixes []string
	MaxBatch        int
	PollFloor       time.Duration
	DrainGap        time.Duration
	FetchTimeout    time.Duration

	// Database (optional delivery archive; empty disables it)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. Credentials are not
// checked here; call ValidateDiscordReady / ValidateYouTubeReady for the
// features you need at startup.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordBotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.DiscordAPIBase = os.Getenv("DISCORD_API_BASE")
	if cfg.DiscordAPIBase == "" {
		cfg.DiscordAPIBase = "https://discord.com/api/v10"
	}
	cfg.DiscordGatewayURL = os.Getenv("DISCORD_GATEWAY_URL")
	if cfg.DiscordGatewayURL == "" {
		cfg.DiscordGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
	}
	cfg.CommandPrefix = os.Getenv("COMMAND_PREFIX")
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	prefixes := os.Getenv("RELAY_DEFAULT_PREFIXES")
	if prefixes == "" {
		prefixes = "[EN],EN:"
	}
	for _, p := range strings.Split(prefixes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.DefaultPrefixes = append(cfg.DefaultPrefixes, p)
		}
	}
	if len(cfg.DefaultPrefixes) == 0 {
		return nil, fmt.Errorf("RELAY_DEFAULT_PREFIXES contains no usable tokens")
	}

	cfg.MaxBatch = 5
	if v := os.Getenv("RELAY_MAX_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid RELAY_MAX_BATCH %q", v)
		}
		cfg.MaxBatch = n
	}

	var err error
	if cfg.PollFloor, err = durationEnv("RELAY_POLL_FLOOR", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.DrainGap, err = durationEnv("RELAY_DRAIN_GAP", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("RELAY_FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration like 20s", name, v)
	}
	return d, nil
}

// ValidateDiscordReady checks the fields required to run the Discord
// front-end and sink.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_BOT_TOKEN")
	}
	return nil
}

// ValidateYouTubeReady checks that one of the two YouTube auth methods
// is fully configured.
func (c *Config) ValidateYouTubeReady() error {
	if c.YTAPIKey != "" {
		return nil
	}
	if c.YTClientID != "" && c.YTClientSecret != "" && c.YTRefreshToken != "" {
		return nil
	}
	return fmt.Errorf("missing youtube env: require YT_API_KEY or all of YT_CLIENT_ID, YT_CLIENT_SECRET, YT_REFRESH_TOKEN")
}
