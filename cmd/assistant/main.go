package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drive-in/config"
	"drive-in/internal/application"
	"drive-in/internal/infra/anthropic"
	"drive-in/internal/infra/audio"
	"drive-in/internal/infra/gemini"
	"drive-in/internal/infra/openai"
	"drive-in/internal/infra/postgres"
	"drive-in/internal/infra/pushover"
	"drive-in/internal/infra/rabbitmq"
	"drive-in/internal/menu"
	"drive-in/internal/observe"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to env file with secrets")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, cfg.Metrics.ServiceName, version)
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		defer shutdown(context.Background())
	}

	catalog, err := menu.Load(cfg.Menu.Path)
	if err != nil {
		// Keep serving: chat and totals still work without a menu.
		logger.Error("loading menu", "path", cfg.Menu.Path, "error", err)
		catalog = nil
	} else {
		logger.Info("menu loaded", "path", cfg.Menu.Path, "deals", catalog.Len())
	}

	source, err := createSource(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		// Share the speech server's port when configured to.
		if httpSource, ok := source.(*audio.HTTPSource); ok && cfg.Metrics.Addr == cfg.Audio.HTTPAddr {
			httpSource.Mount("GET /metrics", observe.Handler())
		} else {
			startMetricsServer(ctx, cfg.Metrics.Addr, logger)
		}
	}

	chatTimeout, err := cfg.ChatTimeout()
	if err != nil {
		return err
	}

	chat, err := createChat(cfg, chatTimeout, logger)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := createSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	assistant := application.NewAssistant(
		source,
		createSTT(cfg.OpenAI),
		chat,
		catalog,
		application.NewDispatcher(logger, sinks...),
		createRenderer(cfg.Audio.Source),
		logger,
		application.WithMetrics(observe.DefaultMetrics()),
		application.WithSessionOptions(application.WithChatTimeout(chatTimeout)),
	)

	logger.Info("starting drive-in assistant",
		"source", cfg.Audio.Source,
		"chat_provider", cfg.Chat.Provider,
		"chat_enabled", chat != nil,
		"sinks", len(sinks),
		"version", version,
	)

	if err := assistant.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createSource(cfg *config.Config, logger *slog.Logger) (application.UtteranceSource, error) {
	audioCfg := cfg.Audio
	switch audioCfg.Source {
	case "http":
		replyTimeout, err := cfg.ReplyTimeout()
		if err != nil {
			return nil, err
		}
		src := audio.NewHTTPSource(audioCfg.HTTPAddr, audioCfg.AuthToken, logger)
		src.SetReplyTimeout(replyTimeout)
		src.SetAllowedOrigins(audioCfg.AllowedOrigins)
		return src, nil
	case "file":
		return audio.NewFileSource(audioCfg.FileDir, logger), nil
	case "microphone":
		format := application.DefaultAudioFormat()
		format.SampleRate = audioCfg.SampleRate
		return audio.NewMicrophoneSource(format, logger), nil
	case "console":
		return audio.NewConsoleSource(os.Stdin), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", audioCfg.Source)
	}
}

func createSTT(cfg config.OpenAIConfig) application.SpeechToText {
	if cfg.APIKey == "" {
		return &application.NoopSTT{}
	}
	return openai.NewWhisperClient(cfg.APIKey, cfg.Language)
}

// createChat returns a nil completer when the provider has no key; the
// session then answers free-form questions with an apology.
func createChat(cfg *config.Config, timeout time.Duration, logger *slog.Logger) (application.ChatCompleter, error) {
	switch cfg.Chat.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			logger.Warn("anthropic api key not set, chat disabled")
			return nil, nil
		}
		return anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			logger.Warn("gemini api key not set, chat disabled")
			return nil, nil
		}
		return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model), nil
	default:
		if cfg.OpenAI.APIKey == "" {
			logger.Warn("openai api key not set, chat disabled")
			return nil, nil
		}
		opts := []openai.ChatOption{openai.WithChatTimeout(timeout)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithChatBaseURL(cfg.OpenAI.BaseURL))
		}
		client, err := openai.NewChatClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai chat client: %w", err)
		}
		return client, nil
	}
}

func createSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]application.OrderSink, func(), error) {
	var (
		sinks   []application.OrderSink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Kitchen.Enabled {
		kitchen, err := rabbitmq.Dial(rabbitmq.Config{
			URL:        cfg.Kitchen.URL,
			Exchange:   cfg.Kitchen.Exchange,
			RoutingKey: cfg.Kitchen.RoutingKey,
			Queue:      cfg.Kitchen.Queue,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting kitchen queue: %w", err)
		}
		sinks = append(sinks, kitchen)
		closers = append(closers, func() {
			if err := kitchen.Close(); err != nil {
				logger.Warn("closing kitchen queue", "error", err)
			}
		})
		logger.Info("kitchen queue connected")
	}

	if cfg.Archive.Enabled {
		archive, err := postgres.Connect(ctx, cfg.Archive.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting ticket archive: %w", err)
		}
		sinks = append(sinks, archive)
		closers = append(closers, archive.Close)
		logger.Info("ticket archive connected")
	}

	if cfg.Pushover.Enabled {
		sinks = append(sinks, application.NewNotifierSink(
			pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, cfg.Pushover.Title),
		))
	}

	return sinks, closeAll, nil
}

func createRenderer(source string) application.Renderer {
	switch source {
	case "console", "microphone", "file":
		return application.NewConsoleRenderer(os.Stdout)
	default:
		return application.NoopRenderer{}
	}
}

func startMetricsServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observe.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
