package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moysklad_sync/internal/model"
)

// ==================== 辅助函数 ====================

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "连接测试数据库失败")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.All()...), "数据库迁移失败")
	return db
}

// ==================== 映射仓储 ====================

func TestMappingRepo_UpsertIsLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMappingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, 10, "remote-1", []byte(`{"name":"a"}`)))
	require.NoError(t, repo.Upsert(ctx, 10, "remote-1", []byte(`{"name":"a"}`)))
	require.NoError(t, repo.Upsert(ctx, 11, "remote-1", []byte(`{"name":"b"}`)))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	m, err := repo.FindByRemoteID(ctx, "remote-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(11), m.LocalID)
	assert.JSONEq(t, `{"name":"b"}`, string(m.RemoteSnapshot))

	missing, err := repo.FindByRemoteID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMappingRepo_AllOmitsSnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMappingRepository(db)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Upsert(ctx, int64(i+1), id, []byte(`{"big":true}`)))
	}
	rows, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].RemoteID)
	assert.Empty(t, rows[0].RemoteSnapshot)

	byLocal, err := repo.FindByLocalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", byLocal.RemoteID)
}

// ==================== 商品仓储 ====================

func TestProductRepo_FindBySKUAndStock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	parent := &model.Product{Name: "Shirt", SKU: "SH-1", Type: model.ProductTypeVariable}
	require.NoError(t, repo.Create(ctx, parent))
	variation := &model.Product{Name: "Shirt L", SKU: "SH-1", Type: model.ProductTypeVariation, ParentID: parent.ID, RemoteVariantID: "v-1"}
	require.NoError(t, repo.Create(ctx, variation))

	found, err := repo.FindBySKU(ctx, "SH-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, parent.ID, found.ID, "variations are not matched by SKU")

	require.NoError(t, repo.UpdateStock(ctx, variation.ID, -4))
	got, err := repo.GetByID(ctx, variation.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StockQuantity)
	assert.Equal(t, 0, *got.StockQuantity)
	assert.Equal(t, model.StockStatusOutOfStock, got.StockStatus)

	byRemote, err := repo.FindVariationByRemoteID(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, variation.ID, byRemote.ID)

	assert.Error(t, repo.UpdateStock(ctx, 9999, 1))
}

func TestProductRepo_EnsureTaxonomyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	a, err := repo.EnsureTaxonomy(ctx, "Размер")
	require.NoError(t, err)
	b, err := repo.EnsureTaxonomy(ctx, "Размер")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "razmer", a.Slug)

	t1, err := repo.EnsureTerm(ctx, a.ID, "XL")
	require.NoError(t, err)
	t2, err := repo.EnsureTerm(ctx, a.ID, "XL")
	require.NoError(t, err)
	assert.Equal(t, t1.ID, t2.ID)
}

func TestProductRepo_ReplaceAttributes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	p := &model.Product{Name: "Mug"}
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, repo.ReplaceAttributes(ctx, p.ID, []model.ProductAttribute{{Name: "Color", Value: "red"}, {Name: "Size", Value: "M"}}))
	require.NoError(t, repo.ReplaceAttributes(ctx, p.ID, []model.ProductAttribute{{Name: "Color", Value: "blue"}}))

	attrs, err := repo.ListAttributes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "blue", attrs[0].Value)
}

// ==================== 订单仓储 ====================

func TestOrderRepo_LinkRemoteNeverChangesLink(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	o := &model.Order{Number: "100", Status: model.OrderStatusProcessing}
	require.NoError(t, repo.Create(ctx, o))

	require.NoError(t, repo.LinkRemote(ctx, o.ID, "r-1"))
	require.NoError(t, repo.LinkRemote(ctx, o.ID, "r-2"))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.RemoteOrderID)

	byRemote, err := repo.FindByRemoteID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byRemote.ID)
}

func TestOrderRepo_ListUnlinked(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	old := &model.Order{Number: "1"}
	require.NoError(t, repo.Create(ctx, old))
	db.Model(old).Update("created_at", time.Now().Add(-2*time.Hour))

	fresh := &model.Order{Number: "2"}
	require.NoError(t, repo.Create(ctx, fresh))

	linked := &model.Order{Number: "3", RemoteOrderID: "r"}
	require.NoError(t, repo.Create(ctx, linked))
	db.Model(linked).Update("created_at", time.Now().Add(-2*time.Hour))

	exhausted := &model.Order{Number: "4", SyncAttempts: 5}
	require.NoError(t, repo.Create(ctx, exhausted))
	db.Model(exhausted).Update("created_at", time.Now().Add(-2*time.Hour))

	list, err := repo.ListUnlinked(ctx, time.Now().Add(-time.Hour), 3, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "1", list[0].Number)

	require.NoError(t, repo.MarkSyncFailed(ctx, old.ID, "boom"))
	got, _ := repo.GetByID(ctx, old.ID)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Equal(t, "boom", got.SyncError)
}

// ==================== 配置项 / 日志 ====================

func TestOptionRepo_SetGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOptionRepository(db)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "k", "v1"))
	require.NoError(t, repo.Set(ctx, "k", "v2"))
	v, ok, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetTime(ctx, model.OptLastInventorySync, now))
	got, err := repo.GetTime(ctx, model.OptLastInventorySync)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))

	require.NoError(t, repo.SetJSON(ctx, "list", []string{"a"}))
	var list []string
	found, err := repo.GetJSON(ctx, "list", &list)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a"}, list)
}

func TestSyncLogRepo_ListCountCleanup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncLogRepository(db)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, repo.Insert(ctx, &model.SyncLog{Timestamp: base.Add(-40 * 24 * time.Hour), Level: model.LogLevelInfo, Message: "old"}))
	require.NoError(t, repo.Insert(ctx, &model.SyncLog{Timestamp: base.Add(-time.Minute), Level: model.LogLevelError, Message: "err"}))
	require.NoError(t, repo.Insert(ctx, &model.SyncLog{Timestamp: base, Level: model.LogLevelInfo, Message: "new"}))

	logs, err := repo.List(ctx, LogFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "new", logs[0].Message)

	n, err := repo.Count(ctx, model.LogLevelError)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, repo.Clear(ctx))
	n, _ = repo.Count(ctx, "")
	assert.Zero(t, n)
}
