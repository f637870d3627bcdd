package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/db"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// advisoryLockKey serialises dev auto-migrations between the api and
// cron-worker processes sharing one database.
const advisoryLockKey int64 = 0x696e7673796e63

// MaybeRunDev migrates the schema on boot when running in dev with
// INVSYNC_AUTO_MIGRATE set. Postgres goes through goose under an advisory
// lock; a sqlite database is built with AutoMigrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "db_driver": client.Dialect()})

	if client.Dialect() == config.DBDriverSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		logg.Info(ctx, "sqlite schema auto-migrated")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserving lock connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer func() {
		// the lock is session scoped; a failed unlock is released when conn closes
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", advisoryLockKey); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "releasing migration lock failed")
		}
	}()

	before, err := Version(ctx, sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "schema_version", before), "running goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}

	after, err := Version(ctx, sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"from_version": before, "schema_version": after}), "goose migrations completed")
	return nil
}
