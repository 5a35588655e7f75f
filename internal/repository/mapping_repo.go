package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moysklad_sync/internal/model"
)

// ==================== 接口定义 ====================

// MappingRepository stores local ⇄ remote catalog item links.
type MappingRepository interface {
	FindByRemoteID(ctx context.Context, remoteID string) (*model.EntityMapping, error)
	FindByLocalID(ctx context.Context, localID int64) (*model.EntityMapping, error)
	// Upsert inserts or, when remoteID exists, overwrites local id and snapshot.
	Upsert(ctx context.Context, localID int64, remoteID string, snapshot []byte) error
	// All returns every mapping without snapshots, ordered by id.
	All(ctx context.Context) ([]model.EntityMapping, error)
	List(ctx context.Context, page, pageSize int) ([]model.EntityMapping, int64, error)
	Count(ctx context.Context) (int64, error)
}

// ==================== 仓储实现 ====================

type mappingRepo struct {
	db *gorm.DB
}

// NewMappingRepository 创建映射仓储
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepo{db: db}
}

func (r *mappingRepo) FindByRemoteID(ctx context.Context, remoteID string) (*model.EntityMapping, error) {
	var m model.EntityMapping
	err := r.db.WithContext(ctx).Where("remote_id = ?", remoteID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByLocalID returns the most recently written mapping for localID.
func (r *mappingRepo) FindByLocalID(ctx context.Context, localID int64) (*model.EntityMapping, error) {
	var m model.EntityMapping
	err := r.db.WithContext(ctx).
		Where("local_id = ?", localID).
		Order("updated_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mappingRepo) Upsert(ctx context.Context, localID int64, remoteID string, snapshot []byte) error {
	now := time.Now()
	m := model.EntityMapping{
		LocalID:        localID,
		RemoteID:       remoteID,
		RemoteSnapshot: datatypes.JSON(snapshot),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(snapshot) == 0 {
		m.RemoteSnapshot = datatypes.JSON("{}")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "remote_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"local_id", "remote_snapshot", "updated_at"}),
	}).Create(&m).Error
}

func (r *mappingRepo) All(ctx context.Context) ([]model.EntityMapping, error) {
	var rows []model.EntityMapping
	err := r.db.WithContext(ctx).
		Select("id", "local_id", "remote_id", "updated_at").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *mappingRepo) List(ctx context.Context, page, pageSize int) ([]model.EntityMapping, int64, error) {
	var rows []model.EntityMapping
	var total int64
	query := r.db.WithContext(ctx).Model(&model.EntityMapping{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	err := query.Order("updated_at DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&rows).Error
	return rows, total, err
}

func (r *mappingRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.EntityMapping{}).Count(&n).Error
	return n, err
}
