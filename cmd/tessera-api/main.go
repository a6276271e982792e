package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tessera-social/tessera/internal/auth"
	"github.com/tessera-social/tessera/internal/config"
	"github.com/tessera-social/tessera/internal/database"
	"github.com/tessera-social/tessera/internal/logging"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/server"
	"github.com/tessera-social/tessera/internal/users"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tessera-api",
		Short: "Tessera social backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("session-issuer", defaults.GetString("session.issuer"), "Expected session token issuer")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().String("session-signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("feed-page-size", defaults.GetInt("feed.page_size"), "Feed page size")
	cmd.PersistentFlags().Int("notifications-page-size", defaults.GetInt("notifications.page_size"), "Notification page size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.issuer", "session-issuer")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.signing_secret", "session-signing-secret")
	bindFlag(cmd, "feed.page_size", "feed-page-size")
	bindFlag(cmd, "notifications.page_size", "notifications-page-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	postStore, err := posts.NewStore(posts.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	assembler, err := posts.NewAssembler(posts.AssemblerConfig{
		Source: postStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	notificationsService, err := notifications.NewService(notifications.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:             sessionValidator,
		Users:                usersService,
		Posts:                postStore,
		Assembler:            assembler,
		Notifications:        notificationsService,
		Realtime:             server.NewRealtimeDispatcher(),
		Logger:               logger,
		FeedPageSize:         appConfig.FeedPageSize,
		NotificationPageSize: appConfig.NotificationPageSize,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
