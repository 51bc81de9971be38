// Command tl-relay watches YouTube (and Twitch) live chats and relays
// translation-tagged messages to Discord channels. It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres for the delivery archive and runs
//     idempotent migrations.
//   - Starts the relay engine (poll scheduler + subscription table) and
//     the Discord gateway consumer for !watch / !stop / !prefix.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /history, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/tl-relay/config"
	"github.com/onnwee/tl-relay/db"
	"github.com/onnwee/tl-relay/discord"
	"github.com/onnwee/tl-relay/relay"
	"github.com/onnwee/tl-relay/server"
	"github.com/onnwee/tl-relay/telemetry"
	"github.com/onnwee/tl-relay/twitchchat"
	"github.com/onnwee/tl-relay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("tl-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional delivery archive
	var archive *db.Archive
	if cfg.DBDsn != "" {
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		archive = &db.Archive{DB: database}
	} else {
		slog.Info("delivery archive disabled (DB_DSN empty)")
	}

	// Chat sources: YouTube is the default route, Twitch handles
	// twitch:<channel> targets.
	var sources *relay.SourceMux
	if err := cfg.ValidateYouTubeReady(); err == nil {
		yt, err := youtubeapi.New(ctx, cfg)
		if err != nil {
			slog.Error("youtube client init failed", slog.Any("err", err))
			os.Exit(1)
		}
		sources = relay.NewSourceMux(yt)
	} else {
		slog.Warn("youtube source disabled", slog.Any("err", err))
		sources = relay.NewSourceMux(nil)
	}
	sources.Register("twitch", twitchchat.New(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, slog.Default().With(slog.String("component", "twitchchat"))))

	// Relay engine
	opts := relay.Options{
		Source:          sources,
		Logger:          slog.Default().With(slog.String("component", "relay")),
		DefaultPrefixes: cfg.DefaultPrefixes,
		MaxBatch:        cfg.MaxBatch,
		PollFloor:       cfg.PollFloor,
		DrainGap:        cfg.DrainGap,
		FetchTimeout:    cfg.FetchTimeout,
	}
	if archive != nil {
		opts.Archive = archive
	}
	engine := relay.NewEngine(opts)
	go engine.Run(ctx)

	// Discord: REST sink + gateway command front-end
	client := &discord.Client{Token: cfg.DiscordBotToken, BaseURL: cfg.DiscordAPIBase}
	dispatcher := &discord.Dispatcher{
		Engine: engine,
		Client: client,
		Prefix: cfg.CommandPrefix,
		Logger: slog.Default().With(slog.String("component", "commands")),
	}
	gateway := &discord.Gateway{
		Token:    cfg.DiscordBotToken,
		URL:      cfg.DiscordGatewayURL,
		Dispatch: dispatcher.HandleMessage,
		Logger:   slog.Default().With(slog.String("component", "gateway")),
	}
	go gateway.Run(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/history/metrics)
	go func() {
		if err := server.Start(ctx, server.NewHandlers(engine, gateway, archive), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
