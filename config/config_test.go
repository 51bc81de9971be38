package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAY_DEFAULT_PREFIXES", "")
	t.Setenv("RELAY_MAX_BATCH", "")
	t.Setenv("RELAY_POLL_FLOOR", "")
	t.Setenv("COMMAND_PREFIX", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.DefaultPrefixes) != 2 || cfg.DefaultPrefixes[0] != "[EN]" || cfg.DefaultPrefixes[1] != "EN:" {
		t.Errorf("default prefixes = %v, want [EN] EN:", cfg.DefaultPrefixes)
	}
	if cfg.MaxBatch != 5 {
		t.Errorf("MaxBatch = %d, want 5", cfg.MaxBatch)
	}
	if cfg.PollFloor != 20*time.Second {
		t.Errorf("PollFloor = %v, want 20s", cfg.PollFloor)
	}
	if cfg.DrainGap != 2*time.Second {
		t.Errorf("DrainGap = %v, want 2s", cfg.DrainGap)
	}
	if cfg.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q, want !", cfg.CommandPrefix)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DiscordAPIBase == "" || cfg.DiscordGatewayURL == "" {
		t.Errorf("discord endpoints must have defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_DEFAULT_PREFIXES", "[JP] , JP:,")
	t.Setenv("RELAY_MAX_BATCH", "3")
	t.Setenv("RELAY_POLL_FLOOR", "45s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.DefaultPrefixes) != 2 || cfg.DefaultPrefixes[0] != "[JP]" || cfg.DefaultPrefixes[1] != "JP:" {
		t.Errorf("prefixes not trimmed/split: %v", cfg.DefaultPrefixes)
	}
	if cfg.MaxBatch != 3 {
		t.Errorf("MaxBatch = %d, want 3", cfg.MaxBatch)
	}
	if cfg.PollFloor != 45*time.Second {
		t.Errorf("PollFloor = %v, want 45s", cfg.PollFloor)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RELAY_MAX_BATCH", "zero")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for non-numeric RELAY_MAX_BATCH")
	}
	t.Setenv("RELAY_MAX_BATCH", "0")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for RELAY_MAX_BATCH below 1")
	}
	t.Setenv("RELAY_MAX_BATCH", "5")
	t.Setenv("RELAY_POLL_FLOOR", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for unparsable RELAY_POLL_FLOOR")
	}
}

func TestValidateDiscordReady(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "tok")
	cfg, _ := Load()
	if err := cfg.ValidateDiscordReady(); err != nil {
		t.Errorf("expected valid discord config, got %v", err)
	}
	t.Setenv("DISCORD_BOT_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateDiscordReady(); err == nil {
		t.Errorf("expected error when DISCORD_BOT_TOKEN missing")
	}
}

func TestValidateYouTubeReady(t *testing.T) {
	t.Setenv("YT_API_KEY", "key")
	t.Setenv("YT_CLIENT_ID", "")
	t.Setenv("YT_CLIENT_SECRET", "")
	t.Setenv("YT_REFRESH_TOKEN", "")
	cfg, _ := Load()
	if err := cfg.ValidateYouTubeReady(); err != nil {
		t.Errorf("API key alone must satisfy youtube auth: %v", err)
	}

	t.Setenv("YT_API_KEY", "")
	t.Setenv("YT_CLIENT_ID", "id")
	t.Setenv("YT_CLIENT_SECRET", "sec")
	t.Setenv("YT_REFRESH_TOKEN", "ref")
	cfg, _ = Load()
	if err := cfg.ValidateYouTubeReady(); err != nil {
		t.Errorf("oauth trio must satisfy youtube auth: %v", err)
	}

	t.Setenv("YT_REFRESH_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateYouTubeReady(); err == nil {
		t.Errorf("partial oauth trio must fail validation")
	}
}
