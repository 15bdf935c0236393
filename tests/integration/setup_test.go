//go:build integration

package integration

import (
	"fmt"
	"log"
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5434"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "reservations_test_db"),
	)

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	dropTables()

	if err := testDB.AutoMigrate(
		&models.Resource{},
		&models.BusinessHours{},
		&models.BlackoutDate{},
		&models.RecurrenceRule{},
		&models.Reservation{},
		&models.WaitlistEntry{},
	); err != nil {
		log.Fatalf("failed to auto-migrate test database: %v", err)
	}

	// Install the same exclusion constraint production carries, so the
	// concurrency tests run against the full schema.
	testDB.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`)
	testDB.Exec(`
		ALTER TABLE reservations
			ADD CONSTRAINT reservations_no_overlap
			EXCLUDE USING gist (
				resource_id WITH =,
				tsrange(start_at, end_at) WITH &&
			) WHERE (status IN ('pending_approval', 'active'))
	`)

	code := m.Run()

	dropTables()
	os.Exit(code)
}

func dropTables() {
	for _, table := range []string{
		"reservations", "recurrence_rules", "waitlist_entries",
		"blackout_dates", "business_hours", "resources",
	} {
		testDB.Exec("DROP TABLE IF EXISTS " + table + " CASCADE")
	}
}

func cleanTables() {
	for _, table := range []string{
		"reservations", "recurrence_rules", "waitlist_entries",
		"blackout_dates", "business_hours", "resources",
	} {
		testDB.Exec("DELETE FROM " + table)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
