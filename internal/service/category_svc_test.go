package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

func folder(id, name, parentID string) moysklad.ProductFolder {
	f := moysklad.ProductFolder{ID: id, Name: name}
	if parentID != "" {
		f.ProductFolder = moysklad.NewRef(testBase, "/entity/productfolder/"+parentID, moysklad.TypeProductFolder)
	}
	return f
}

func newCategoryFixture(t *testing.T) (*fakeRemote, repository.CategoryRepository, *CategoryService) {
	db := setupTestDB(t)
	remote := newFakeRemote()
	categories := repository.NewCategoryRepository(db)
	svc := NewCategoryService(remote, categories, repository.NewOptionRepository(db), NewSessionManager(),
		config.CatalogConfig{Enabled: true, SyncGroups: true})
	return remote, categories, svc
}

func TestSyncCategories_ParentBeforeChild(t *testing.T) {
	remote, categories, svc := newCategoryFixture(t)
	// child listed before its parent
	remote.folders = []moysklad.ProductFolder{
		folder("c", "Chairs", "b"),
		folder("b", "Furniture", "a"),
		folder("a", "Home", ""),
	}
	ctx := context.Background()

	result, err := svc.SyncCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Created)

	home, err := categories.FindByRemoteID(ctx, "a")
	require.NoError(t, err)
	furniture, err := categories.FindByRemoteID(ctx, "b")
	require.NoError(t, err)
	chairs, err := categories.FindByRemoteID(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, home)
	require.NotNil(t, furniture)
	require.NotNil(t, chairs)

	assert.Equal(t, int64(0), home.ParentID)
	assert.Equal(t, home.ID, furniture.ParentID)
	assert.Equal(t, furniture.ID, chairs.ParentID)
	assert.Less(t, furniture.ID, chairs.ID, "parent row is written first")
}

func TestSyncCategories_RerunUpdates(t *testing.T) {
	remote, categories, svc := newCategoryFixture(t)
	remote.folders = []moysklad.ProductFolder{folder("a", "Home", "")}
	ctx := context.Background()

	_, err := svc.SyncCategories(ctx)
	require.NoError(t, err)
	remote.folders[0].Name = "House"
	result, err := svc.SyncCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Updated)

	list, err := categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "House", list[0].Name)
}

func TestSyncCategories_UnresolvableParentGoesToTopLevel(t *testing.T) {
	remote, categories, svc := newCategoryFixture(t)
	remote.folders = []moysklad.ProductFolder{
		folder("a", "Home", ""),
		folder("orphan", "Lost", "missing"),
		folder("child", "Found", "orphan"),
	}

	result, err := svc.SyncCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Created)
	assert.Zero(t, result.Stats.Skipped)

	ctx := context.Background()
	orphan, err := categories.FindByRemoteID(ctx, "orphan")
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Zero(t, orphan.ParentID)

	child, err := categories.FindByRemoteID(ctx, "child")
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, orphan.ID, child.ParentID)
}

func TestSyncCategories_Disabled(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCategoryService(newFakeRemote(), repository.NewCategoryRepository(db), repository.NewOptionRepository(db),
		NewSessionManager(), config.CatalogConfig{Enabled: true, SyncGroups: false})
	_, err := svc.SyncCategories(context.Background())
	assert.ErrorIs(t, err, ErrSyncDisabled)
}
