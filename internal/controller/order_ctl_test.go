package controller

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/service"
)

type fakeOrders struct {
	created  []int64
	statuses map[int64]string
	synced   []int64
	err      error
}

func (f *fakeOrders) OnOrderCreated(_ context.Context, id int64) error {
	f.created = append(f.created, id)
	return f.err
}
func (f *fakeOrders) ChangeStatus(_ context.Context, id int64, status string) error {
	if f.statuses == nil {
		f.statuses = map[int64]string{}
	}
	f.statuses[id] = status
	return f.err
}
func (f *fakeOrders) CreateOrUpdateOrder(_ context.Context, id int64) (bool, error) {
	f.synced = append(f.synced, id)
	return f.err == nil, f.err
}

func setupOrderRouter(svc *fakeOrders) *gin.Engine {
	ctl := NewOrderController(svc)
	r := gin.New()
	r.POST("/orders/:id/created", ctl.Created)
	r.PUT("/orders/:id/status", ctl.UpdateStatus)
	r.POST("/orders/:id/sync", ctl.Sync)
	return r
}

func TestOrderController_Created(t *testing.T) {
	svc := &fakeOrders{}
	r := setupOrderRouter(svc)

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodPost, "/orders/42/created", nil).Code)
	assert.Equal(t, []int64{42}, svc.created)

	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodPost, "/orders/abc/created", nil).Code)
	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodPost, "/orders/0/created", nil).Code)
}

func TestOrderController_UpdateStatus(t *testing.T) {
	svc := &fakeOrders{}
	r := setupOrderRouter(svc)

	w := performRequest(r, http.MethodPut, "/orders/7/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", svc.statuses[7])

	w = performRequest(r, http.MethodPut, "/orders/7/status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderController_SyncErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"no positions", service.ErrNoPositions, http.StatusUnprocessableEntity},
		{"stopped", service.ErrStopped, http.StatusInternalServerError},
		{"busy", service.ErrSyncInProgress, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupOrderRouter(&fakeOrders{err: tt.err})
			w := performRequest(r, http.MethodPost, "/orders/5/sync", nil)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
