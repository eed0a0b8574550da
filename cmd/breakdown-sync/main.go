package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/auth"
	"github.com/Breakdown/breakdown-services-sub000/internal/cache"
	"github.com/Breakdown/breakdown-services-sub000/internal/config"
	"github.com/Breakdown/breakdown-services-sub000/internal/congress"
	"github.com/Breakdown/breakdown-services-sub000/internal/database"
	"github.com/Breakdown/breakdown-services-sub000/internal/jobs"
	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/logging"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/propublica"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/search"
	"github.com/Breakdown/breakdown-services-sub000/internal/server"
	"github.com/Breakdown/breakdown-services-sub000/internal/summarizer"
	"github.com/Breakdown/breakdown-services-sub000/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenIssuer     = "breakdown-sync"
	tokenAudience   = "breakdown-ops"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "breakdown-sync",
		Short: "Breakdown legislative sync worker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newEnqueueCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Ops HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Optional rotating log file")
	cmd.PersistentFlags().Int("congress", defaults.GetInt("propublica.congress"), "Congress number to sync")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("cache.redis_url"), "Redis URL for the read-model cache")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "propublica.congress", "congress")
	bindFlag(cmd, "cache.redis_url", "redis-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newEnqueueCommand() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "enqueue <task>",
		Short: "Queue one task for the running worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			name := strings.TrimSpace(args[0])
			if !rt.queue.Registered(name) {
				return fmt.Errorf("unknown task %q (known: %s)", name, strings.Join(rt.queue.Names(), ", "))
			}
			body := json.RawMessage(strings.TrimSpace(payload))
			id, err := rt.queue.Enqueue(cmd.Context(), name, body, queue.EnqueueOptions{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload, e.g. '{\"code\":\"hr100\"}'")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			issued, err := issuer.Issue(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator name recorded in the token")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

// runtime holds the wired worker components.
type runtime struct {
	config       config.AppConfig
	logger       *zap.Logger
	db           *gorm.DB
	cache        cache.Cache
	queue        *queue.Queue
	orchestrator *jobs.Orchestrator
	dispatcher   *notify.Dispatcher
	closers      []func() error
}

func newRuntime() (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Options{Level: appConfig.LogLevel, FilePath: appConfig.LogFile})
	if err != nil {
		return nil, err
	}
	rt := &runtime{config: appConfig, logger: logger}
	rt.closers = append(rt.closers, func() error {
		_ = logger.Sync()
		return nil
	})
	if err := rt.wire(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) wire() error {
	appConfig := rt.config
	logger := rt.logger

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	rt.db = db
	rt.closers = append(rt.closers, sqlDB.Close)

	if appConfig.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(appConfig.RedisURL)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, redisCache.Close)
		rt.cache = redisCache
	} else {
		logger.Info("no redis url configured, using in-process cache")
		rt.cache = cache.NewMemoryCache(time.Now)
	}

	source, err := propublica.NewClient(propublica.Config{
		APIKey:   appConfig.PropublicaAPIKey,
		BaseURL:  appConfig.PropublicaBaseURL,
		Congress: appConfig.Congress,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	text := congress.NewClient(congress.Config{BaseURL: appConfig.GovInfoBaseURL, Logger: logger})
	summaries, err := summarizer.New(summarizer.Config{
		APIKey:  appConfig.AnthropicAPIKey,
		Model:   appConfig.AnthropicModel,
		BaseURL: appConfig.AnthropicBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	var indexer search.Indexer
	if strings.TrimSpace(appConfig.SearchURL) != "" {
		client, err := search.NewClient(search.Config{URL: appConfig.SearchURL, APIKey: appConfig.SearchAPIKey, Logger: logger})
		if err != nil {
			return err
		}
		indexer = client
	}

	store, err := legislation.NewStore(legislation.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	rt.dispatcher = notify.NewDispatcher()
	sender, err := notify.NewSender(notify.SenderConfig{Database: db, Dispatcher: rt.dispatcher, Logger: logger})
	if err != nil {
		return err
	}
	rt.queue, err = queue.New(queue.Config{
		Database:     db,
		Logger:       logger,
		PollInterval: appConfig.PollInterval,
		Location:     appConfig.Timezone,
	})
	if err != nil {
		return err
	}

	handlers, err := jobs.New(jobs.Config{
		Store:      store,
		Users:      userService,
		Source:     source,
		Text:       text,
		Summarizer: summaries,
		Indexer:    indexer,
		Cache:      rt.cache,
		Sender:     sender,
		Queue:      rt.queue,
		Congress:   appConfig.Congress,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	rt.orchestrator, err = jobs.NewOrchestrator(rt.queue, handlers, logger)
	if err != nil {
		return err
	}
	return rt.orchestrator.Register()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

func runWorker(ctx context.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	issuer, err := newTokenIssuer(rt.config)
	if err != nil {
		return err
	}
	sqlDB, err := rt.db.DB()
	if err != nil {
		return err
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:      issuer,
		Queue:       rt.queue,
		Dispatcher:  rt.dispatcher,
		HealthCheck: sqlDB.PingContext,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.orchestrator.Start(signalCtx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	rt.queue.Wait()
	logger.Info("worker stopped")
	return serveErr
}
