package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "TESSERA"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "tessera.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "tessera_session"
	defaultSessionIssuer = "tessera-auth"
	defaultFeedPageSize  = 30
	defaultNotifPageSize = 50
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	SessionSigningKey    string
	SessionIssuer        string
	SessionCookieName    string
	FeedPageSize         int
	NotificationPageSize int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("feed.page_size", defaultFeedPageSize)
	configViper.SetDefault("notifications.page_size", defaultNotifPageSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningKey:    configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		FeedPageSize:         configViper.GetInt("feed.page_size"),
		NotificationPageSize: configViper.GetInt("notifications.page_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if c.FeedPageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive")
	}
	if c.NotificationPageSize <= 0 {
		return fmt.Errorf("notifications.page_size must be positive")
	}
	return nil
}
