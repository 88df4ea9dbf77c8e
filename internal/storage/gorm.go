package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one row of the key/value table.
type KVEntry struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

// GormStore is a key/value store backed by a SQL table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the key/value table and returns a store on it.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).First(&entry, "entry_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return []byte(entry.Value), true, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte) error {
	entry := KVEntry{Key: key, Value: string(value), UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&KVEntry{}, "entry_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Update rewrites key inside a transaction holding a row lock, so writers in
// other processes sharing the table serialize on it.
func (s *GormStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := KVEntry{Key: key, UpdatedAt: time.Now()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("failed to seed %q: %w", key, err)
		}
		var entry KVEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, "entry_key = ?", key).Error; err != nil {
			return fmt.Errorf("failed to lock %q: %w", key, err)
		}
		next, err := fn([]byte(entry.Value))
		if err != nil || next == nil {
			return err
		}
		err = tx.Model(&KVEntry{}).Where("entry_key = ?", key).Updates(map[string]any{
			"value":      string(next),
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return fmt.Errorf("failed to write %q: %w", key, err)
		}
		return nil
	})
}
