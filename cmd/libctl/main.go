// Command libctl runs administrative tasks against the library database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"librarian/internal/auth"
	"librarian/internal/cache"
	"librarian/internal/config"
	"librarian/internal/db"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	db  *gorm.DB
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Administrative tasks for the librarian service",
		SilenceUsage: true,
	}

	// connect is run by subcommands that need the database.
	connect := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.log = config.NewLogger(cfg.Logging, cmd.ErrOrStderr())

		gormDB, err := db.Open(cfg.Database, a.log)
		if err != nil {
			return err
		}
		a.db = gormDB
		return nil
	}
	disconnect := func(*cobra.Command, []string) error {
		if a.db == nil {
			return nil
		}
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	for _, cmd := range []*cobra.Command{
		newMigrateCmd(a),
		newCreateAdminCmd(a),
		newSeedBooksCmd(a),
	} {
		cmd.PersistentPreRunE = connect
		cmd.PersistentPostRunE = disconnect
		root.AddCommand(cmd)
	}
	return root
}

// sessionStore connects to Redis and returns the session store with a closer.
func (a *app) sessionStore(ctx context.Context) (*auth.RedisSessionStore, func(), error) {
	client := cache.New(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	jwtService := auth.NewJWTService(a.cfg.Auth.JWTSecret, a.cfg.Auth.SessionTTL)
	return auth.NewRedisSessionStore(client.Redis(), jwtService), func() { _ = client.Close() }, nil
}
