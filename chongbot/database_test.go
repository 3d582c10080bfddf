package chongbot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDB(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"raid_checks", "reminder_logs", "verification_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	var journalMode string
	require.NoError(t, db.Raw("pragma journal_mode;").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)
}

func TestRaidCheckWithReminders(t *testing.T) {
	db := setupTestDB(t)

	check := RaidCheck{
		Success:         true,
		TotalEvents:     2,
		ProcessedEvents: 2,
		TotalReminders:  1,
		TotalErrors:     1,
		Reminders: []ReminderLog{
			{UserID: "1", Member: "alice", EventCount: 2, Success: true},
			{UserID: "2", Member: "bob", EventCount: 1, Error: "DMs disabled"},
		},
	}
	require.NoError(t, db.WithContext(context.Background()).Create(&check).Error)
	assert.NotZero(t, check.ID)
	assert.NotZero(t, check.CreatedAt)

	var loaded RaidCheck
	require.NoError(
		t,
		db.Preload("Reminders").First(&loaded, check.ID).Error,
	)
	require.Len(t, loaded.Reminders, 2)
	assert.Equal(t, check.ID, loaded.Reminders[0].RaidCheckID)
	assert.Equal(t, "alice", loaded.Reminders[0].Member)
	assert.False(t, loaded.Reminders[1].Success)
	assert.Equal(t, "DMs disabled", loaded.Reminders[1].Error)
}

func TestRecordSignupCheck(t *testing.T) {
	bot := newTestBot(t, newRecordingSession())
	bot.db = setupTestDB(t)

	bot.recordSignupCheck(
		context.Background(), false, SignupCheckResult{
			Success:         true,
			TotalEvents:     1,
			ProcessedEvents: 1,
			TotalReminders:  1,
			Results: []DispatchResult{
				{Success: true, Member: "alice", UserID: "1", EventCount: 1},
			},
		},
	)

	var checks []RaidCheck
	require.NoError(t, bot.db.Preload("Reminders").Find(&checks).Error)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Success)
	require.Len(t, checks[0].Reminders, 1)
	assert.Equal(t, "1", checks[0].Reminders[0].UserID)
}

func TestRecordSignupCheck_NoDatabase(t *testing.T) {
	bot := newTestBot(t, newRecordingSession())
	// must be a no-op, not a panic
	bot.recordSignupCheck(context.Background(), true, SignupCheckResult{})
}
