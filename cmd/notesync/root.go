package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/notesync/internal/config"
	"github.com/MarcoPoloResearchLab/notesync/internal/database"
	"github.com/MarcoPoloResearchLab/notesync/internal/localstore"
	"github.com/MarcoPoloResearchLab/notesync/internal/logging"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/MarcoPoloResearchLab/notesync/internal/remote"
	"github.com/MarcoPoloResearchLab/notesync/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// clientApp owns the configuration of one CLI invocation.
type clientApp struct {
	viper   *viper.Viper
	cfgFile string
}

// session is the wired sync service for one command run.
type session struct {
	service      *syncer.Service
	owner        notes.UserID
	connectivity syncer.Connectivity
	logger       *zap.Logger
	close        func()
}

func newRootCommand() *cobra.Command {
	app := &clientApp{viper: config.NewClientViper()}
	defaults := config.NewClientViper()

	rootCmd := &cobra.Command{
		Use:          "notesync",
		Short:        "Local-first notes with deferred sync",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "Path to configuration file")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite cache path")
	flags.String("remote-url", defaults.GetString("remote.url"), "notesync API base URL")
	flags.String("remote-token", "", "Bearer token for the notesync API")
	flags.String("user", "", "Owner identifier")
	flags.Bool("offline", false, "Do not contact the remote store")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Rotating log file (stderr when empty)")

	app.bindFlag(rootCmd, "database.path", "database-path")
	app.bindFlag(rootCmd, "remote.url", "remote-url")
	app.bindFlag(rootCmd, "remote.token", "remote-token")
	app.bindFlag(rootCmd, "user.id", "user")
	app.bindFlag(rootCmd, "offline", "offline")
	app.bindFlag(rootCmd, "log.level", "log-level")
	app.bindFlag(rootCmd, "log.file", "log-file")

	rootCmd.AddCommand(
		newListCommand(app),
		newCreateCommand(app),
		newUpdateCommand(app),
		newDeleteCommand(app),
		newPinCommand(app),
		newStatusCommand(app),
	)
	return rootCmd
}

func (a *clientApp) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (a *clientApp) initConfig() error {
	if a.cfgFile == "" {
		return nil
	}
	a.viper.SetConfigFile(a.cfgFile)
	if err := a.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", a.cfgFile, err)
	}
	return nil
}

func (a *clientApp) open() (*session, error) {
	cfg, err := config.LoadClient(a.viper)
	if err != nil {
		return nil, err
	}
	owner, err := notes.NewUserID(cfg.UserID)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(cfg.DatabasePath, logger, database.ClientSchema)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	kv, err := localstore.NewGormKeyValueStore(db, nil)
	if err != nil {
		return nil, err
	}
	noteStore, err := localstore.NewNoteStore(kv, logger)
	if err != nil {
		return nil, err
	}
	ledgerStore, err := localstore.NewLedgerStore(kv)
	if err != nil {
		return nil, err
	}

	var gateway remote.Gateway
	if cfg.RemoteConfigured() {
		gateway = remote.NewHTTPGateway(gatewayConfig(cfg))
	}

	service, err := syncer.NewService(syncer.ServiceConfig{
		Notes:         noteStore,
		Ledgers:       ledgerStore,
		Gateway:       gateway,
		Logger:        logger,
		RemoteTimeout: cfg.RemoteTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		service:      service,
		owner:        owner,
		connectivity: syncer.ConnectivityFromOffline(cfg.Offline),
		logger:       logger,
		close: func() {
			_ = logger.Sync()
			_ = sqlDB.Close()
		},
	}, nil
}

// gatewayConfig translates client settings for the HTTP gateway, where a zero
// retry count selects the gateway default and a negative one disables resends.
func gatewayConfig(cfg config.ClientConfig) remote.HTTPGatewayConfig {
	maxRetries := cfg.RemoteMaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	return remote.HTTPGatewayConfig{
		BaseURL:    cfg.RemoteURL,
		Token:      cfg.RemoteToken,
		MaxRetries: maxRetries,
	}
}

// run opens a session, executes fn and prints its result as JSON.
func (a *clientApp) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) (any, error)) error {
	s, err := a.open()
	if err != nil {
		return err
	}
	defer s.close()

	result, err := fn(cmd.Context(), s)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
