package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MirroredRecord is one raw provider record mirrored locally.
type MirroredRecord struct {
	ID         uint   `gorm:"primaryKey"`
	AccountID  string `gorm:"size:64;index;uniqueIndex:idx_record_identity"`
	Endpoint   string `gorm:"size:32;uniqueIndex:idx_record_identity"`
	ExternalID string `gorm:"size:128;uniqueIndex:idx_record_identity"`
	Payload    []byte `gorm:"type:jsonb"`
	SyncedAt   time.Time
}

// SyncRun is one persisted execution summary of a sync cycle.
type SyncRun struct {
	ID         uint   `gorm:"primaryKey"`
	AccountID  string `gorm:"size:64;index"`
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     []byte `gorm:"type:jsonb"`
	Error      string
}

// DB is the postgres-backed record store.
type DB struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the mirror tables.
func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&MirroredRecord{}, &SyncRun{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &DB{db: db}, nil
}

// UpsertRecords writes one drained page batch, replacing any previously
// mirrored payload for the same account/endpoint/external id.
func (s *DB) UpsertRecords(ctx context.Context, accountID, endpoint string, items []json.RawMessage) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	records := make([]MirroredRecord, 0, len(items))
	for i, item := range items {
		externalID := ExternalID(item)
		if externalID == "" {
			externalID = fmt.Sprintf("%s-%d-%d", endpoint, now.UnixNano(), i)
		}
		records = append(records, MirroredRecord{
			AccountID:  accountID,
			Endpoint:   endpoint,
			ExternalID: externalID,
			Payload:    []byte(item),
			SyncedAt:   now,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "endpoint"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "synced_at"}),
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("upsert %s records: %w", endpoint, err)
	}
	return nil
}

// RecordSyncRun persists the summary of one sync cycle.
func (s *DB) RecordSyncRun(ctx context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr string) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("record sync run: marshal counts: %w", err)
	}

	run := SyncRun{
		AccountID:  accountID,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Counts:     payload,
		Error:      syncErr,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}
