package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GameRow struct {
	ID        string         `gorm:"primaryKey;type:text"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	Origin    string         `gorm:"type:text"`
	UpdatedAt time.Time
}

func (GameRow) TableName() string { return "games" }

// Records is the games table.
type Records struct {
	db *gorm.DB
}

func OpenRecords(dsn string) (*Records, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&GameRow{}); err != nil {
		return nil, fmt.Errorf("migrate games: %w", err)
	}
	return &Records{db: db}, nil
}

func toRow(state engine.GameState, origin string) (GameRow, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return GameRow{}, err
	}
	return GameRow{ID: state.ID, Data: datatypes.JSON(data), Origin: origin, UpdatedAt: time.Now()}, nil
}

func (r *Records) Upsert(ctx context.Context, state engine.GameState, token string) error {
	row, err := toRow(state, token)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "origin", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", state.ID, err)
	}
	return nil
}

// Ensure inserts the record unless one already exists. It reports whether it
// created the row.
func (r *Records) Ensure(ctx context.Context, state engine.GameState) (bool, error) {
	row, err := toRow(state, "")
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("ensure game %s: %w", state.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Records) FetchByID(ctx context.Context, id string) (engine.GameState, string, error) {
	var row GameRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.GameState{}, "", ErrNotFound
	}
	if err != nil {
		return engine.GameState{}, "", fmt.Errorf("fetch game %s: %w", id, err)
	}
	var state engine.GameState
	if err := json.Unmarshal(row.Data, &state); err != nil {
		return engine.GameState{}, "", fmt.Errorf("decode game %s: %w", id, err)
	}
	return engine.Normalize(state), row.Origin, nil
}

func (r *Records) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
