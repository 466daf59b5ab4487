package modelconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// userModelConfig 持久化的用户配置文档，按用户一行，JSON 序列化.
type userModelConfig struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex;size:64;not null"`
	Document  string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (userModelConfig) TableName() string { return "user_model_configs" }

// Store 读取用户模型配置文档。配置由管理面写入，本服务只读.
type Store struct {
	db *gorm.DB
}

// NewStore opens the store on the given dialector and migrates the
// schema.
func NewStore(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}
	if err := db.AutoMigrate(&userModelConfig{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing gorm handle, migrating the schema.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&userModelConfig{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the user's document, or (nil, nil) when the user has no
// configuration yet.
func (s *Store) Load(ctx context.Context, userID string) (*UserDocument, error) {
	var row userModelConfig
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	var doc UserDocument
	if err := json.Unmarshal([]byte(row.Document), &doc); err != nil {
		return nil, fmt.Errorf("corrupt user config document: %w", err)
	}
	return &doc, nil
}

// Save upserts the user's document. Exposed for the management plane
// and for tests.
func (s *Store) Save(ctx context.Context, userID string, doc *UserDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode user config: %w", err)
	}

	var row userModelConfig
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = userModelConfig{UserID: userID, Document: string(data)}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create user config: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to load user config: %w", err)
	default:
		row.Document = string(data)
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update user config: %w", err)
		}
		return nil
	}
}
