package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tcmvision-hue/post-it-core/internal/config"
	"github.com/tcmvision-hue/post-it-core/internal/httpapi"
	"github.com/tcmvision-hue/post-it-core/internal/llm"
	"github.com/tcmvision-hue/post-it-core/internal/payments"
	"github.com/tcmvision-hue/post-it-core/internal/store/filestore"
	"github.com/tcmvision-hue/post-it-core/internal/store/gormdoc"
	"github.com/tcmvision-hue/post-it-core/internal/store/kvstore"
	"github.com/tcmvision-hue/post-it-core/internal/store/memstore"
	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

const (
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagDataFilePath   = "data-file"
	flagDatabaseURL    = "database-url"

	configKeyListenAddr       = "listen_addr"
	configKeyAllowedOrigins   = "allowed_origins"
	configKeyPublicBaseURL    = "public_base_url"
	configKeyDataFilePath     = "data_file_path"
	configKeyDatabaseURL      = "database_url"
	configKeyKVRestURL        = "kv_rest_url"
	configKeyKVRestToken      = "kv_rest_token"
	configKeyOpenAIAPIKey     = "openai_api_key"
	configKeyOpenAIBaseURL    = "openai_base_url"
	configKeyOpenAIModel      = "openai_model"
	configKeyMollieAPIKey     = "mollie_api_key"
	configKeyMollieBaseURL    = "mollie_base_url"
	configKeyAdminSecret      = "admin_secret"
	configKeyCookieSigningKey = "cookie_signing_key"
	configKeyCookieTTL        = "cookie_ttl"
	configKeyLLMTimeout       = "llm_timeout"
	configKeyRewriteTimeout   = "rewrite_timeout"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "postitd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "postitd",
		Short:         "Post-it wizard API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().String(flagDataFilePath, "", "ledger document file path")
	cmd.Flags().String(flagDatabaseURL, "", "database connection string (postgres:// or sqlite path)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	_ = godotenv.Load()

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyListenAddr:       "LISTEN_ADDR",
		configKeyAllowedOrigins:   "ALLOWED_ORIGINS",
		configKeyPublicBaseURL:    "PUBLIC_BASE_URL",
		configKeyDataFilePath:     "DATA_FILE_PATH",
		configKeyDatabaseURL:      "DATABASE_URL",
		configKeyKVRestURL:        "KV_REST_API_URL",
		configKeyKVRestToken:      "KV_REST_API_TOKEN",
		configKeyOpenAIAPIKey:     "OPENAI_API_KEY",
		configKeyOpenAIBaseURL:    "OPENAI_BASE_URL",
		configKeyOpenAIModel:      "OPENAI_MODEL",
		configKeyMollieAPIKey:     "MOLLIE_API_KEY",
		configKeyMollieBaseURL:    "MOLLIE_BASE_URL",
		configKeyAdminSecret:      "ADMIN_SECRET",
		configKeyCookieSigningKey: "COOKIE_SIGNING_KEY",
		configKeyCookieTTL:        "COOKIE_TTL",
		configKeyLLMTimeout:       "LLM_TIMEOUT",
		configKeyRewriteTimeout:   "REWRITE_TIMEOUT",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyListenAddr:     flagListenAddr,
		configKeyAllowedOrigins: flagAllowedOrigins,
		configKeyDataFilePath:   flagDataFilePath,
		configKeyDatabaseURL:    flagDatabaseURL,
	}
	for key, flag := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins))
	cfg.PublicBaseURL = viper.GetString(configKeyPublicBaseURL)
	cfg.DataFilePath = viper.GetString(configKeyDataFilePath)
	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.KVRestURL = viper.GetString(configKeyKVRestURL)
	cfg.KVRestToken = viper.GetString(configKeyKVRestToken)
	cfg.OpenAIAPIKey = viper.GetString(configKeyOpenAIAPIKey)
	cfg.OpenAIBaseURL = viper.GetString(configKeyOpenAIBaseURL)
	cfg.OpenAIModel = viper.GetString(configKeyOpenAIModel)
	cfg.MollieAPIKey = viper.GetString(configKeyMollieAPIKey)
	cfg.MollieBaseURL = viper.GetString(configKeyMollieBaseURL)
	cfg.AdminSecret = viper.GetString(configKeyAdminSecret)
	cfg.CookieSigningKey = viper.GetString(configKeyCookieSigningKey)
	cfg.CookieTTL = viper.GetDuration(configKeyCookieTTL)
	cfg.LLMTimeout = viper.GetDuration(configKeyLLMTimeout)
	cfg.RewriteTimeout = viper.GetDuration(configKeyRewriteTimeout)

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backends, cleanup, err := assembleBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := postit.NewDocumentStore(logger, backends...)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	options := []postit.ServiceOption{
		postit.WithOperationLogger(postit.NewZapOperationLogger(logger)),
	}

	if cfg.OpenAIAPIKey != "" {
		generator, llmErr := llm.NewClient(llm.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.OpenAIModel,
			CallTimeout:    cfg.LLMTimeout,
			RewriteTimeout: cfg.RewriteTimeout,
		})
		if llmErr != nil {
			return fmt.Errorf("llm init: %w", llmErr)
		}
		options = append(options, postit.WithTextGenerator(generator))
	} else {
		logger.Warn("no OpenAI key configured, generation endpoints will refuse")
	}

	if cfg.MollieAPIKey != "" {
		provider, mollieErr := payments.NewClient(payments.Config{
			APIKey:        cfg.MollieAPIKey,
			BaseURL:       cfg.MollieBaseURL,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if mollieErr != nil {
			return fmt.Errorf("payments init: %w", mollieErr)
		}
		options = append(options, postit.WithPaymentProvider(provider))
	} else {
		logger.Warn("no Mollie key configured, checkout runs in simulated mode")
	}

	service, err := postit.NewService(store, time.Now, options...)
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}

	return httpapi.Run(ctx, httpapi.Options{
		Logger:           logger,
		Service:          service,
		ListenAddr:       cfg.ListenAddr,
		AllowedOrigins:   cfg.AllowedOrigins,
		CookieSigningKey: cfg.CookieSigningKey,
		CookieTTL:        cfg.CookieTTL,
		AdminSecret:      cfg.AdminSecret,
	})
}

// assembleBackends builds the persistence chain: database or remote KV when
// configured, then the local file, then memory as the terminal fallback.
func assembleBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]postit.Backend, func(), error) {
	var backends []postit.Backend
	cleanup := func() {}

	switch {
	case cfg.DatabaseURL != "":
		dbBackend, closeDB, err := gormdoc.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database backend: %w", err)
		}
		cleanup = func() { _ = closeDB() }
		backends = append(backends, dbBackend)
		logger.Info("ledger backend configured", zap.String("backend", dbBackend.Name()))
	case cfg.KVRestURL != "":
		kvBackend, err := kvstore.New(cfg.KVRestURL, cfg.KVRestToken)
		if err != nil {
			return nil, nil, fmt.Errorf("kv backend: %w", err)
		}
		backends = append(backends, kvBackend)
		logger.Info("ledger backend configured", zap.String("backend", kvBackend.Name()))
	}

	fileBackend, err := filestore.New(cfg.DataFilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("file backend: %w", err)
	}
	backends = append(backends, fileBackend, memstore.New())

	return backends, cleanup, nil
}
