// Package main provides the scrobblerd CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"scrobblerd/internal/controller"
	"scrobblerd/internal/core"
	httpserver "scrobblerd/internal/http"
	"scrobblerd/internal/llm"
	"scrobblerd/internal/pipeline"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/internal/scrobbler/lastfm"
	"scrobblerd/internal/scrobbler/listenbrainz"
	"scrobblerd/internal/scrobbler/maloja"
	"scrobblerd/internal/scrobbler/spotify"
	"scrobblerd/internal/scrobbler/webhook"
	"scrobblerd/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scrobblerd",
	Short: "scrobblerd - multi-service scrobbling daemon",
	Long: `scrobblerd receives listening events from browser extensions, cleans the
song metadata through a processing pipeline, and fans every event out to the
configured scrobbling services.`,
	RunE: runScrobblerd,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server-host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("edits-path", "./edits.db", "path of the correction database")
	rootCmd.PersistentFlags().String("lastfm-api-key", "", "Last.fm API key")
	rootCmd.PersistentFlags().String("lastfm-secret", "", "Last.fm shared secret")
	rootCmd.PersistentFlags().String("lastfm-api-root", "", "custom Last.fm compatible API root (Libre.fm)")
	rootCmd.PersistentFlags().String("listenbrainz-token", "", "ListenBrainz user token")
	rootCmd.PersistentFlags().String("listenbrainz-base-url", "", "custom ListenBrainz base URL")
	rootCmd.PersistentFlags().String("maloja-base-url", "", "Maloja server URL")
	rootCmd.PersistentFlags().String("maloja-api-key", "", "Maloja API key")
	rootCmd.PersistentFlags().String("webhook-url", "", "webhook endpoint for listening events")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("llm-provider", "none", "LLM provider (openai, anthropic, ollama, none)")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model name")
	rootCmd.PersistentFlags().String("llm-api-key", "", "LLM API key")
	rootCmd.PersistentFlags().String("llm-base-url", "", "custom LLM API base URL (Ollama host, proxies)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("SCROBBLERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if path := viper.GetString("edits-path"); path != "" {
		cfg.Store.EditsPath = path
	}

	cfg.LastFM.APIKey = viper.GetString("lastfm-api-key")
	cfg.LastFM.Secret = viper.GetString("lastfm-secret")
	if root := viper.GetString("lastfm-api-root"); root != "" {
		cfg.LastFM.APIRoot = root
	}

	cfg.ListenBrainz.Token = viper.GetString("listenbrainz-token")
	if base := viper.GetString("listenbrainz-base-url"); base != "" {
		cfg.ListenBrainz.BaseURL = base
	}

	cfg.Maloja.BaseURL = viper.GetString("maloja-base-url")
	cfg.Maloja.APIKey = viper.GetString("maloja-api-key")

	cfg.Webhook.URL = viper.GetString("webhook-url")

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")
	if cfg.Spotify.RedirectURL == "" {
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://localhost:%d/auth/spotify/callback", cfg.Server.Port)
	}

	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runScrobblerd(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting scrobblerd",
		zap.String("llm_provider", config.LLM.Provider))

	edits, err := store.OpenEditStore(config.Store.EditsPath)
	if err != nil {
		return fmt.Errorf("open edit store: %w", err)
	}
	defer edits.Close()

	replay := store.NewReplayGuard(config.Store.ReplayCapacity, config.Store.ReplayFalsePositiveRate)

	backends := buildBackends()
	if len(backends) == 0 {
		return fmt.Errorf("no scrobbler configured")
	}
	manager := scrobbler.NewManager(logger.Named("manager"), backends...)

	llmProvider, err := llm.NewProvider(&config.LLM, logger.Named("llm"))
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	processor := pipeline.NewProcessor(logger.Named("pipeline"))
	processor.Register(pipeline.PriorityNormalize, pipeline.NewNormalizeStage())
	processor.Register(pipeline.PriorityUserEdit, pipeline.NewUserEditStage(edits, logger.Named("useredit")))
	if llmProvider.Enabled() {
		processor.Register(pipeline.PriorityLLMExtract, pipeline.NewLLMExtractStage(llmProvider, logger.Named("llmextract")))
	}
	processor.Register(pipeline.PriorityInfo, pipeline.NewInfoStage(manager, logger.Named("info")))
	processor.Register(pipeline.PriorityValidate, pipeline.NewValidateStage())

	ctrl := controller.New(logger.Named("controller"), processor, manager, replay, edits)
	httpServer := httpserver.NewServer(&config.Server, logger.Named("http"), ctrl, manager)

	bound := manager.BindAll(ctx)
	logger.Info("Initial bind complete",
		zap.Int("registered", len(backends)),
		zap.Int("bound", len(bound)))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				httpServer.SetBoundScrobblers(len(manager.Bound()))
			}
		}
	})

	logger.Info("scrobblerd started",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("scrobblerd stopped with error", zap.Error(err))
		return err
	}

	logger.Info("scrobblerd stopped gracefully")
	return nil
}

// buildBackends registers every service that has enough configuration to be
// worth trying. Binding decides later which of them actually work.
func buildBackends() []scrobbler.Scrobbler {
	var backends []scrobbler.Scrobbler

	if config.LastFM.APIKey != "" && config.LastFM.Secret != "" {
		backends = append(backends, lastfm.New(config.LastFM, logger.Named("lastfm")))
	}
	if config.ListenBrainz.Token != "" {
		backends = append(backends, listenbrainz.New(config.ListenBrainz, logger.Named("listenbrainz")))
	}
	if config.Maloja.BaseURL != "" {
		backends = append(backends, maloja.New(config.Maloja, logger.Named("maloja")))
	}
	if config.Webhook.URL != "" {
		backends = append(backends, webhook.New(config.Webhook, logger.Named("webhook")))
	}
	if config.Spotify.ClientID != "" && config.Spotify.ClientSecret != "" {
		backends = append(backends, spotify.New(config.Spotify, logger.Named("spotify")))
	}

	return backends
}
