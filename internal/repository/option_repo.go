package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moysklad_sync/internal/model"
)

// OptionRepository is a key/value store for runtime state.
type OptionRepository interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
	GetJSON(ctx context.Context, name string, out interface{}) (bool, error)
	SetJSON(ctx context.Context, name string, value interface{}) error
	GetTime(ctx context.Context, name string) (time.Time, error)
	SetTime(ctx context.Context, name string, t time.Time) error
}

type optionRepo struct {
	db *gorm.DB
}

// NewOptionRepository 创建配置项仓储
func NewOptionRepository(db *gorm.DB) OptionRepository {
	return &optionRepo{db: db}
}

func (r *optionRepo) Get(ctx context.Context, name string) (string, bool, error) {
	var opt model.Option
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return opt.Value, true, nil
}

func (r *optionRepo) Set(ctx context.Context, name, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Option{Name: name, Value: value, UpdatedAt: time.Now()}).Error
}

func (r *optionRepo) GetJSON(ctx context.Context, name string, out interface{}) (bool, error) {
	raw, ok, err := r.Get(ctx, name)
	if err != nil || !ok || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *optionRepo) SetJSON(ctx context.Context, name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Set(ctx, name, string(raw))
}

// GetTime returns the zero time when the option is unset or unparsable.
func (r *optionRepo) GetTime(ctx context.Context, name string) (time.Time, error) {
	raw, ok, err := r.Get(ctx, name)
	if err != nil || !ok || raw == "" {
		return time.Time{}, err
	}
	t, perr := time.Parse(time.RFC3339, raw)
	if perr != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (r *optionRepo) SetTime(ctx context.Context, name string, t time.Time) error {
	return r.Set(ctx, name, t.UTC().Format(time.RFC3339))
}
