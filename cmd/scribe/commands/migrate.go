package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/config"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations and seed well-known records.

This command applies pending schema changes to the configured database
(SQLite or PostgreSQL), seeds the DEFAULT organization tag, and creates the
initial admin account when one is configured under the admin section.

Examples:
  # Run migrations with default config
  scribe migrate

  # Run migrations with custom config
  scribe migrate --config /etc/scribe/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "driver", cfg.Database.Driver)

	ctx := context.Background()
	st, err := store.New(store.Config{
		Driver:       store.Driver(cfg.Database.Driver),
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Verify the migration worked by querying the seeded DEFAULT tag.
	if _, err := st.GetTag(ctx, models.DefaultTagID); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	if err := seedAdmin(ctx, st, cfg); err != nil {
		return err
	}

	fmt.Printf("Migrations completed successfully (driver: %s)\n", cfg.Database.Driver)
	return nil
}

// seedAdmin creates the configured admin account on first run.
func seedAdmin(ctx context.Context, st *store.GORMStore, cfg *config.Config) error {
	if cfg.Admin.Username == "" {
		return nil
	}
	if cfg.Admin.PasswordHash == "" {
		return fmt.Errorf("admin.username is set but admin.password_hash is empty")
	}

	if _, err := st.GetUserByUsername(ctx, cfg.Admin.Username); err == nil {
		logger.Info("Admin account already present", logger.KeyUsername, cfg.Admin.Username)
		return nil
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("failed to check admin account: %w", err)
	}

	privateTag := models.PrivateTagID(cfg.Admin.Username)
	admin := &models.User{
		Username:      cfg.Admin.Username,
		PasswordHash:  cfg.Admin.PasswordHash,
		Role:          string(models.RoleAdmin),
		PrimaryOrgTag: privateTag,
	}
	admin.SetAssignedTags([]string{privateTag})

	err := st.WithTx(ctx, func(tx *store.GORMStore) error {
		if err := tx.CreateUser(ctx, admin); err != nil {
			return err
		}
		return tx.CreateTag(ctx, &models.OrganizationTag{
			TagID:     privateTag,
			Name:      "Private: " + cfg.Admin.Username,
			CreatedBy: "system",
		})
	})
	if err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}

	logger.Info("Admin account created", logger.KeyUsername, cfg.Admin.Username)
	return nil
}
