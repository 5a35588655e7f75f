package controller

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/internal/service"
	"moysklad_sync/internal/task"
	"moysklad_sync/pkg/moysklad"
)

type fakeSyncs struct {
	result  *service.SyncResult
	err     error
	outcome service.Outcome
	connErr error
	calls   []string
}

func (f *fakeSyncs) bulk(name string) (*service.SyncResult, error) {
	f.calls = append(f.calls, name)
	return f.result, f.err
}

func (f *fakeSyncs) SyncProducts(context.Context) (*service.SyncResult, error) {
	return f.bulk("products")
}
func (f *fakeSyncs) SyncCategories(context.Context) (*service.SyncResult, error) {
	return f.bulk("categories")
}
func (f *fakeSyncs) SyncInventory(context.Context) (*service.SyncResult, error) {
	return f.bulk("inventory")
}
func (f *fakeSyncs) SyncPendingOrders(context.Context) (*service.SyncResult, error) {
	return f.bulk("orders")
}
func (f *fakeSyncs) SyncProduct(_ context.Context, remoteID string) (service.Outcome, error) {
	f.calls = append(f.calls, "product:"+remoteID)
	return f.outcome, f.err
}
func (f *fakeSyncs) TestConnection(context.Context) error { return f.connErr }

type fakeLimits struct{ resets int }

func (f *fakeLimits) ResetGuards() { f.resets++ }

type fakeTasks struct {
	statuses []task.TaskStatus
	ran      []string
}

func (f *fakeTasks) Status() []task.TaskStatus { return f.statuses }
func (f *fakeTasks) RunNow(name string) error {
	for _, s := range f.statuses {
		if s.Name == name {
			f.ran = append(f.ran, name)
			return nil
		}
	}
	return task.ErrTaskDisabled
}

type syncFixture struct {
	syncs    *fakeSyncs
	limits   *fakeLimits
	tasks    *fakeTasks
	sessions *service.SessionManager
	options  repository.OptionRepository
	router   *gin.Engine
}

func newSyncFixture(t *testing.T) *syncFixture {
	f := &syncFixture{
		syncs:    &fakeSyncs{result: &service.SyncResult{Success: true, Message: "done", Stats: service.SyncStats{Created: 2}}},
		limits:   &fakeLimits{},
		tasks:    &fakeTasks{statuses: []task.TaskStatus{{Name: "InventorySyncTask"}}},
		sessions: service.NewSessionManager(),
		options:  repository.NewOptionRepository(setupCtlTestDB(t)),
	}
	ctl := NewSyncController(SyncControllerDeps{
		Catalog:    f.syncs,
		Categories: f.syncs,
		Inventory:  f.syncs,
		Orders:     f.syncs,
		Sessions:   f.sessions,
		Connection: f.syncs,
		Limits:     f.limits,
		Tasks:      f.tasks,
		Options:    f.options,
	})

	r := gin.New()
	r.POST("/sync/products", ctl.SyncProducts)
	r.POST("/sync/products/:remote_id", ctl.SyncProduct)
	r.POST("/sync/categories", ctl.SyncCategories)
	r.POST("/sync/inventory", ctl.SyncInventory)
	r.POST("/sync/orders", ctl.SyncPendingOrders)
	r.POST("/sync/stop", ctl.Stop)
	r.POST("/sync/reset-limits", ctl.ResetLimits)
	r.GET("/sync/status", ctl.Status)
	r.GET("/sync/test-connection", ctl.TestConnection)
	r.GET("/tasks", ctl.Tasks)
	r.POST("/tasks/:name/run", ctl.RunTask)
	f.router = r
	return f
}

func TestSyncController_BulkSyncReturnsResult(t *testing.T) {
	f := newSyncFixture(t)

	for _, path := range []string{"/sync/products", "/sync/categories", "/sync/inventory", "/sync/orders"} {
		w := performRequest(f.router, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var result service.SyncResult
		resp := decode(t, w, &result)
		assert.Equal(t, "done", resp.Message)
		assert.Equal(t, 2, result.Stats.Created)
	}
	assert.Equal(t, []string{"products", "categories", "inventory", "orders"}, f.syncs.calls)
}

func TestSyncController_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"busy", service.ErrSyncInProgress, http.StatusConflict},
		{"disabled", service.ErrSyncDisabled, http.StatusForbidden},
		{"unconfigured", moysklad.ErrAPINotConfigured, http.StatusUnprocessableEntity},
		{"remote", &moysklad.APIError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t)
			f.syncs.err = tt.err
			w := performRequest(f.router, http.MethodPost, "/sync/inventory", nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.code, decode(t, w, nil).Code)
		})
	}
}

func TestSyncController_SyncProduct(t *testing.T) {
	f := newSyncFixture(t)
	f.syncs.outcome = service.OutcomeUpdated

	w := performRequest(f.router, http.MethodPost, "/sync/products/p-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]string
	decode(t, w, &data)
	assert.Equal(t, "updated", data["outcome"])
	assert.Equal(t, []string{"product:p-1"}, f.syncs.calls)
}

func TestSyncController_StopWhileIdleIsRemembered(t *testing.T) {
	f := newSyncFixture(t)

	w := performRequest(f.router, http.MethodPost, "/sync/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]bool
	decode(t, w, &data)
	assert.False(t, data["running"])
	assert.True(t, f.sessions.StopPending())
}

func TestSyncController_Status(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.options.SetTime(ctx, model.OptLastProductSync, last))

	sess, err := f.sessions.Begin(ctx, service.KindInventory)
	require.NoError(t, err)
	sess.SetProgress(3, 10, "SKU-3")
	defer sess.End()

	w := performRequest(f.router, http.MethodGet, "/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status SyncStatusResponse
	decode(t, w, &status)
	assert.True(t, status.InProgress)
	require.Len(t, status.Sessions, 1)
	assert.Equal(t, service.KindInventory, status.Sessions[0].Kind)
	assert.Equal(t, 3, status.Sessions[0].Progress.Processed)
	require.NotNil(t, status.LastSync["products"])
	assert.True(t, last.Equal(*status.LastSync["products"]))
	assert.Nil(t, status.LastSync["inventory"])
	require.Len(t, status.Tasks, 1)
}

func TestSyncController_TestConnection(t *testing.T) {
	f := newSyncFixture(t)
	assert.Equal(t, http.StatusOK, performRequest(f.router, http.MethodGet, "/sync/test-connection", nil).Code)

	f.syncs.connErr = moysklad.ErrAuthFailed
	w := performRequest(f.router, http.MethodGet, "/sync/test-connection", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w, nil).Message, "auth_failed")
}

func TestSyncController_ResetLimits(t *testing.T) {
	f := newSyncFixture(t)
	w := performRequest(f.router, http.MethodPost, "/sync/reset-limits", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.limits.resets)

	ctl := NewSyncController(SyncControllerDeps{})
	r := gin.New()
	r.POST("/sync/reset-limits", ctl.ResetLimits)
	assert.Equal(t, http.StatusNotImplemented, performRequest(r, http.MethodPost, "/sync/reset-limits", nil).Code)
}

func TestSyncController_RunTask(t *testing.T) {
	f := newSyncFixture(t)

	w := performRequest(f.router, http.MethodPost, "/tasks/InventorySyncTask/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"InventorySyncTask"}, f.tasks.ran)

	w = performRequest(f.router, http.MethodPost, "/tasks/CatalogSyncTask/run", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(f.router, http.MethodGet, "/tasks", nil)
	var list []task.TaskStatus
	decode(t, w, &list)
	assert.Len(t, list, 1)
}
