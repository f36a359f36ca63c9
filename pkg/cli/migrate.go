package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dock-ai/registry/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Long: `Apply (up, the default) or roll back (down) the SQL migrations in
migrations_path. --steps limits how many migrations are applied or rolled back.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(database.MigrateUp), string(database.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := database.MigrateUp
			if len(args) == 1 {
				switch database.MigrationDirection(args[0]) {
				case database.MigrateUp, database.MigrateDown:
					direction = database.MigrationDirection(args[0])
				default:
					return fmt.Errorf("unknown direction %q: use up or down", args[0])
				}
			}
			if direction == database.MigrateDown && steps == 0 {
				return fmt.Errorf("migrate down requires --steps")
			}

			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			sqlDB := db.SQLDB()
			defer sqlDB.Close()

			return database.Migrate(sqlDB, cfg.MigrationsPath, direction, steps, logger)
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply or roll back (0 = all, up only)")
	return cmd
}
