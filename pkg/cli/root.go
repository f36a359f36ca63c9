// Package cli implements the registry command line: the HTTP server and the
// operator commands for migrations, provider onboarding and card checks.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/logging"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/services"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	version    string
	configPath string
	jsonOutput bool

	// newAdmin opens the provider administration service. The returned
	// cleanup must be called.
	newAdmin func(ctx context.Context) (services.ProviderAdminService, func(), error)
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	opts.newAdmin = opts.openAdmin
	return newRootCommand(opts)
}

func newRootCommand(opts *rootOptions) *cobra.Command {

	cmd := &cobra.Command{
		Use:   "dockai-registry",
		Short: "Dock AI registry: resolves business domains to MCP endpoints",
		Long: `dockai-registry serves the Entity Discovery Protocol API.

It merges provider registrations with domain-hosted Entity Cards and answers
which MCP endpoints can act for a business domain, with verification levels.

Configuration is read from config.yaml (or --config) with environment
variable overrides. Secrets such as PGPASSWORD come from the environment only.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output command results in JSON format")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newProviderCmd(opts),
		newCardCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// Execute runs the CLI and exits non-zero on failure. It is called by main.main.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the logger every command uses.
func (o *rootOptions) loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, o.version)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openDatabase connects to Postgres. The DSN is logged with its password
// redacted.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	dsn := cfg.Database.ConnectionString()
	logger.Info("Connecting to database",
		zap.String("dsn", logging.SanitizeConnectionString(dsn)),
		zap.Int32("max_connections", cfg.Database.MaxConnections))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openAdmin connects to the database for the provider commands.
func (o *rootOptions) openAdmin(ctx context.Context) (services.ProviderAdminService, func(), error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	admin := services.NewProviderAdminService(database.NewScopeFunc(db), repositories.NewProviderRepository(), logger)
	cleanup := func() {
		db.Close()
		_ = logger.Sync()
	}
	return admin, cleanup, nil
}
