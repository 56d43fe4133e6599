package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/credstore"
	"github.com/identkit/identcli/internal/config"
	"github.com/identkit/identcli/session"
)

// app carries the wired session core across subcommands.
type app struct {
	cfg         config.Config
	store       credstore.Store
	state       *session.State
	manager     *session.Manager
	redisClient *redis.Client
}

func (a *app) client() *api.Client {
	return a.manager.Client()
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "identcli",
		Short:        "Account management client for the identity API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			displayAppname("identcli")
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("api_url", "", "Identity API base URL")
	rootCmd.PersistentFlags().String("store", config.StoreFile, "Credential store backend: memory, file or redis")
	rootCmd.PersistentFlags().String("store_path", "", "Path of the file credential store")
	rootCmd.PersistentFlags().String("redis_url", "", "Redis URL for the redis credential store")
	rootCmd.PersistentFlags().Duration("http_timeout", 30*time.Second, "Per-request HTTP timeout")
	rootCmd.PersistentFlags().String("log_level", "warn", "Log level: trace, debug, info, warn, error")

	for _, name := range []string{"api_url", "store", "store_path", "redis_url", "http_timeout", "log_level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.SetEnvPrefix("IDENTCLI")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newRegisterCommand(a),
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newVerifyEmailCommand(a),
		newResendVerificationCommand(a),
		newPasswordCommand(a),
		newProfileCommand(a),
		newSessionsCommand(a),
		newTwoFactorCommand(a),
		newBackupCodesCommand(a),
		newSecurityInfoCommand(a),
		newOAuthCommand(a),
		newAdminCommand(a),
	)

	return rootCmd
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zlog.Logger = zlog.Level(level)

	store, err := a.buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.store = store

	a.state = session.NewState()
	manager, err := session.NewManager(store, a.state, cfg.APIBaseURL,
		session.WithHTTPTimeout(cfg.HTTPTimeout),
		session.WithSignOut(func() {
			zlog.Info().Msg("session ended, sign in again with `identcli login`")
		}),
	)
	if err != nil {
		return err
	}
	a.manager = manager

	// A dead persisted session is not an error for the CLI: commands
	// that need credentials fail with a clear 401 later, and `login`
	// must stay usable.
	if err := a.manager.Initialize(ctx); err != nil {
		zlog.Debug().Err(err).Msg("session restore failed")
	}
	return nil
}

func (a *app) buildStore(ctx context.Context, cfg config.Config) (credstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return credstore.NewMemory(), nil
	case config.StoreFile:
		return credstore.NewFile(cfg.StorePath, cfg.Passphrase)
	case config.StoreRedis:
		client, err := credstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		return credstore.NewRedis(client, ""), nil
	}
	return nil, config.ErrUnknownBackend
}

func (a *app) teardown() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
}

// printJSON renders API records for the terminal.
func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
