package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"moysklad_sync/internal/model"
)

// ==================== 过滤条件 ====================

// OrderFilter 订单过滤条件
type OrderFilter struct {
	Status   string
	Linked   *bool
	Page     int
	PageSize int
}

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByIDWithItems(ctx context.Context, id int64) (*model.Order, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	AddNote(ctx context.Context, orderID int64, note string) error

	// 同步相关
	// LinkRemote stores the remote id; an already linked order is left unchanged.
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncFailed(ctx context.Context, id int64, errMsg string) error
	ListUnlinked(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]model.Order, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ==================== 实现 ====================

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByIDWithItems(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByRemoteID(ctx context.Context, remoteID string) (*model.Order, error) {
	if remoteID == "" {
		return nil, nil
	}
	var order model.Order
	err := r.db.WithContext(ctx).Where("remote_order_id = ?", remoteID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Linked != nil {
		if *filter.Linked {
			query = query.Where("remote_order_id <> ''")
		} else {
			query = query.Where("remote_order_id = '' OR remote_order_id IS NULL")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	err := query.
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&orders).Error
	return orders, total, err
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Update("status", status).Error
}

func (r *orderRepository) AddNote(ctx context.Context, orderID int64, note string) error {
	return r.db.WithContext(ctx).Create(&model.OrderNote{OrderID: orderID, Note: note}).Error
}

func (r *orderRepository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND (remote_order_id = '' OR remote_order_id IS NULL)", id).
		Updates(map[string]interface{}{
			"remote_order_id": remoteID,
			"synced_at":       now,
			"sync_error":      "",
		}).Error
}

func (r *orderRepository) MarkSynced(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"synced_at":  time.Now(),
			"sync_error": "",
		}).Error
}

func (r *orderRepository) MarkSyncFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > 1024 {
		errMsg = errMsg[:1024]
	}
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"sync_error":    errMsg,
		}).Error
}

// ListUnlinked returns orders not yet created remotely, oldest first.
func (r *orderRepository) ListUnlinked(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]model.Order, error) {
	var orders []model.Order
	query := r.db.WithContext(ctx).
		Where("(remote_order_id = '' OR remote_order_id IS NULL) AND created_at <= ?", createdBefore)
	if maxAttempts > 0 {
		query = query.Where("sync_attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at ASC").Find(&orders).Error
	return orders, err
}

func (r *orderRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string
		Count  int64
	}
	var results []result
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(results))
	for _, res := range results {
		stats[res.Status] = res.Count
	}
	return stats, nil
}
