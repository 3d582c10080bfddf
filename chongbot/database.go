package chongbot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// RaidCheck is the audit record for one raid signup check run. The
// check itself never reads these back - reconciliation state is
// re-derived from live data every run.
type RaidCheck struct {
	ModelUintID
	ModelUnixTime

	DryRun          bool   `json:"dry_run"`
	Success         bool   `json:"success"`
	TotalEvents     int    `json:"total_events"`
	ProcessedEvents int    `json:"processed_events"`
	TotalReminders  int    `json:"total_reminders"`
	TotalErrors     int    `json:"total_errors"`
	Note            string `json:"note,omitempty"`
	Error           string `json:"error,omitempty"`

	Reminders []ReminderLog `json:"reminders,omitempty" gorm:"foreignKey:RaidCheckID"`
}

// ReminderLog is the audit record for one reminder dispatch attempt.
type ReminderLog struct {
	ModelUintID
	ModelUnixTime

	RaidCheckID uint   `json:"raid_check_id" gorm:"index"`
	UserID      string `json:"user_id" gorm:"index"`
	Member      string `json:"member"`
	EventCount  int    `json:"event_count"`
	Success     bool   `json:"success"`
	DryRun      bool   `json:"dry_run"`
	Error       string `json:"error,omitempty"`
}

// VerificationLog records the outcome of one member verification
// flow, mirroring what's posted to the auto-logs channel.
type VerificationLog struct {
	ModelUintID
	ModelUnixTime

	UserID        string `json:"user_id" gorm:"index"`
	Username      string `json:"username"`
	Nickname      string `json:"nickname"`
	CommunityRole string `json:"community_role"`
	RoleID        string `json:"role_id"`
	Notes         string `json:"notes,omitempty"`
}

// CreateDB opens (creating if necessary) the SQLite database at the
// given path and migrates the audit tables.
func CreateDB(
	ctx context.Context,
	database string,
	handler slog.Handler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	if slowThreshold <= 0 {
		slowThreshold = DefaultDatabaseSlowThreshold
	}
	gormLogger := newGORMLogger(handler, slowThreshold)
	dbLogger := slog.New(handler).With(loggerNameKey, "database")

	dbLogger.InfoContext(ctx, "initializing database", "database", database)

	parentDir := filepath.Dir(database)
	if parentDir != "" {
		if err := os.MkdirAll(parentDir, 0755); err != nil {
			if !errors.Is(err, os.ErrExist) {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(
		sqlite.Open(database),
		&gorm.Config{
			Logger: gormLogger,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		},
	)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range sqliteExecPragma {
		if err = db.WithContext(ctx).Exec(pragma).Error; err != nil {
			return nil, err
		}
	}

	txn := db.WithContext(ctx).Begin()
	if err = txn.Migrator().AutoMigrate(
		&RaidCheck{},
		&ReminderLog{},
		&VerificationLog{},
	); err != nil {
		_ = txn.Rollback()
		return nil, err
	}
	if err = txn.Commit().Error; err != nil {
		return nil, err
	}

	return db, nil
}
