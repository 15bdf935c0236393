package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// NewPostgresDB connects to Postgres, migrates the schema and installs the
// overlap exclusion constraint that backstops the advisory conflict check.
func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Resource{},
		&models.BusinessHours{},
		&models.BlackoutDate{},
		&models.RecurrenceRule{},
		&models.Reservation{},
		&models.WaitlistEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Last line of defense for the no-overlap invariant: even if application
	// locking is bypassed, Postgres rejects a second blocking reservation on
	// an intersecting half-open window.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable btree_gist: %w", err)
	}
	if err := db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'reservations_no_overlap'
			) THEN
				ALTER TABLE reservations
					ADD CONSTRAINT reservations_no_overlap
					EXCLUDE USING gist (
						resource_id WITH =,
						tsrange(start_at, end_at) WITH &&
					) WHERE (status IN ('pending_approval', 'active'));
			END IF;
		END
		$$;
	`).Error; err != nil {
		return nil, fmt.Errorf("failed to create overlap constraint: %w", err)
	}

	return db, nil
}
