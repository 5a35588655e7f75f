package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"moysklad_sync/internal/model"
)

// CustomerRepository 客户仓储接口
type CustomerRepository interface {
	Create(ctx context.Context, customer *model.Customer) error
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
	Update(ctx context.Context, customer *model.Customer) error
	SetRemoteID(ctx context.Context, id int64, remoteID string) error
	SetBonusBalance(ctx context.Context, id int64, balance int) error
	List(ctx context.Context, page, pageSize int) ([]model.Customer, int64, error)
}

type customerRepo struct {
	db *gorm.DB
}

// NewCustomerRepository 创建客户仓储
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepo{db: db}
}

func (r *customerRepo) Create(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *customerRepo) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) Update(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Save(customer).Error
}

func (r *customerRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Customer{}).
		Where("id = ?", id).
		Update("remote_customer_id", remoteID).Error
}

func (r *customerRepo) SetBonusBalance(ctx context.Context, id int64, balance int) error {
	return r.db.WithContext(ctx).
		Model(&model.Customer{}).
		Where("id = ?", id).
		Update("bonus_balance", balance).Error
}

func (r *customerRepo) List(ctx context.Context, page, pageSize int) ([]model.Customer, int64, error) {
	var list []model.Customer
	var total int64
	query := r.db.WithContext(ctx).Model(&model.Customer{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	err := query.Order("id DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&list).Error
	return list, total, err
}
