// Package persistence journals dispatch events to a relational database.
// The in-memory store keeps a bounded ring for the API; the journal is the
// durable, unbounded record behind it.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
)

// EventModel is the GORM row for one journalled event. Body holds the full
// event JSON so replays decode into the same typed payloads.
type EventModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Seq       uint64    `gorm:"index"`
	EventType string    `gorm:"index;size:64"`
	Timestamp time.Time `gorm:"index"`
	Body      string    `gorm:"type:text"`
}

// TableName specifies the table name for GORM
func (EventModel) TableName() string {
	return "dispatch_events"
}

// Journal implements the store's event sink using GORM.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewJournal creates the journal and migrates its schema.
func NewJournal(db *gorm.DB, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&EventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// RecordEvents persists one applied batch. The sink runs outside the store
// lock and must not fail the tick, so write errors are logged and dropped.
func (j *Journal) RecordEvents(events []event.Event) {
	if len(events) == 0 {
		return
	}

	models := make([]EventModel, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			j.logger.Error("failed to encode event for journal",
				zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		models = append(models, EventModel{
			ID:        e.ID,
			Seq:       e.Seq,
			EventType: string(e.Type),
			Timestamp: e.Timestamp,
			Body:      string(body),
		})
	}

	if result := j.db.CreateInBatches(models, 100); result.Error != nil {
		j.logger.Error("failed to journal event batch",
			zap.Int("events", len(models)), zap.Error(result.Error))
	}
}

// Events retrieves journalled events newest first. An empty eventType
// matches all types; limit <= 0 returns everything.
func (j *Journal) Events(ctx context.Context, eventType event.Type, limit int) ([]event.Event, error) {
	query := j.db.WithContext(ctx).Order("seq DESC")
	if eventType != "" {
		query = query.Where("event_type = ?", string(eventType))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if result := query.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("failed to query event journal: %w", result.Error)
	}

	events := make([]event.Event, 0, len(models))
	for _, m := range models {
		var e event.Event
		if err := json.Unmarshal([]byte(m.Body), &e); err != nil {
			return nil, fmt.Errorf("failed to decode journalled event %s: %w", m.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// CountByType returns how many events of the given type are journalled.
func (j *Journal) CountByType(ctx context.Context, eventType event.Type) (int64, error) {
	var count int64
	result := j.db.WithContext(ctx).
		Model(&EventModel{}).
		Where("event_type = ?", string(eventType)).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count journalled events: %w", result.Error)
	}
	return count, nil
}

// Prune deletes journalled events older than the cutoff and reports how
// many rows went away.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result := j.db.WithContext(ctx).
		Where("timestamp < ?", olderThan).
		Delete(&EventModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune event journal: %w", result.Error)
	}
	return result.RowsAffected, nil
}
