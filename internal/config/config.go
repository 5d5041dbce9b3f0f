package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "NOTESYNC"

	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultServerDatabasePath = "notesync-api.db"
	defaultClientDatabasePath = "notesync.db"
	defaultLogLevel           = "info"
	defaultLogMaxSizeMB       = 10
	defaultLogMaxBackups      = 3
	defaultTokenIssuer        = "notesync-api"
	defaultTokenAudience      = "notesync-clients"
	defaultTokenTTL           = 24 * time.Hour
	defaultRemoteURL          = "http://127.0.0.1:8080"
	defaultRemoteTimeout      = 15 * time.Second
	defaultRemoteMaxRetries   = 3
)

// LogConfig is shared by the server and the client.
type LogConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// ServerConfig captures runtime configuration for the notes API server.
type ServerConfig struct {
	HTTPAddress   string
	DatabasePath  string
	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration
	Log           LogConfig
}

// ClientConfig captures runtime configuration for the sync client.
type ClientConfig struct {
	DatabasePath     string
	RemoteURL        string
	RemoteToken      string
	RemoteTimeout    time.Duration
	RemoteMaxRetries int
	UserID           string
	Offline          bool
	Log              LogConfig
}

// NewServerViper returns a viper instance with server defaults and env bindings.
func NewServerViper() *viper.Viper {
	configViper := viper.New()
	ApplyServerDefaults(configViper)
	return configViper
}

// NewClientViper returns a viper instance with client defaults and env bindings.
func NewClientViper() *viper.Viper {
	configViper := viper.New()
	ApplyClientDefaults(configViper)
	return configViper
}

func applyCommonDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	configViper.SetDefault("log.max_backups", defaultLogMaxBackups)
}

// ApplyServerDefaults configures server defaults and env bindings.
func ApplyServerDefaults(configViper *viper.Viper) {
	applyCommonDefaults(configViper)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultServerDatabasePath)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
}

// ApplyClientDefaults configures client defaults and env bindings.
func ApplyClientDefaults(configViper *viper.Viper) {
	applyCommonDefaults(configViper)
	configViper.SetDefault("database.path", defaultClientDatabasePath)
	configViper.SetDefault("remote.url", defaultRemoteURL)
	configViper.SetDefault("remote.token", "")
	configViper.SetDefault("remote.timeout", defaultRemoteTimeout)
	configViper.SetDefault("remote.max_retries", defaultRemoteMaxRetries)
	configViper.SetDefault("user.id", "")
	configViper.SetDefault("offline", false)
}

func loadLog(configViper *viper.Viper) LogConfig {
	return LogConfig{
		Level:      configViper.GetString("log.level"),
		FilePath:   configViper.GetString("log.file"),
		MaxSizeMB:  configViper.GetInt("log.max_size_mb"),
		MaxBackups: configViper.GetInt("log.max_backups"),
	}
}

// LoadServer parses server configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenAudience: configViper.GetString("auth.audience"),
		TokenTTL:      configViper.GetDuration("auth.token_ttl"),
		Log:           loadLog(configViper),
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		DatabasePath:     configViper.GetString("database.path"),
		RemoteURL:        configViper.GetString("remote.url"),
		RemoteToken:      configViper.GetString("remote.token"),
		RemoteTimeout:    configViper.GetDuration("remote.timeout"),
		RemoteMaxRetries: configViper.GetInt("remote.max_retries"),
		UserID:           strings.TrimSpace(configViper.GetString("user.id")),
		Offline:          configViper.GetBool("offline"),
		Log:              loadLog(configViper),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TokenIssuer) == "" || strings.TrimSpace(c.TokenAudience) == "" {
		return fmt.Errorf("auth.issuer and auth.audience are required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

func (c ClientConfig) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user.id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.RemoteTimeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	if c.RemoteMaxRetries < 0 {
		return fmt.Errorf("remote.max_retries must not be negative")
	}
	return nil
}

// RemoteConfigured reports whether the client can reach a remote store.
func (c ClientConfig) RemoteConfigured() bool {
	return strings.TrimSpace(c.RemoteURL) != "" && strings.TrimSpace(c.RemoteToken) != ""
}
