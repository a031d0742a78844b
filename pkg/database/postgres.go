package database

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/medqueue/opd-booking/internal/models"
)

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Doctor{}, &models.Slot{}, &models.Booking{}, &models.Profile{}); err != nil {
		log.Fatalf("failed to auto-migrate: %v", err)
	}

	// Partial unique index: a user may hold at most one non-cancelled booking
	// per slot. Walk-in emergency rows have a null user_id and are exempt.
	db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_active_user_slot
		ON bookings (slot_id, user_id)
		WHERE booking_status <> 'cancelled' AND user_id IS NOT NULL
	`)

	// Queue reads and renumbering scan by slot + position.
	db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_booking_slot_queue
		ON bookings (slot_id, queue_position)
	`)

	return db
}
