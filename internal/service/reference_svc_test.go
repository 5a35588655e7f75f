package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/pkg/moysklad"
)

func TestReferenceService_CachesLists(t *testing.T) {
	remote := newFakeRemote()
	remote.stores = []moysklad.Store{{ID: "st-1", Name: "Main"}}
	svc := NewReferenceService(remote, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stores, err := svc.Stores(ctx)
		require.NoError(t, err)
		assert.Len(t, stores, 1)
	}
	assert.Equal(t, 1, remote.refCalls["stores"])

	svc.Invalidate()
	_, err := svc.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.refCalls["stores"])
}

func TestReferenceService_EmptyGroupsAreRetried(t *testing.T) {
	remote := newFakeRemote()
	svc := NewReferenceService(remote, 0)
	ctx := context.Background()

	assert.Empty(t, svc.CustomerGroups(ctx))
	remote.groups = []moysklad.Group{{ID: "g-1", Name: "VIP"}}
	assert.Len(t, svc.CustomerGroups(ctx), 1)
	assert.Len(t, svc.CustomerGroups(ctx), 1)
	assert.Equal(t, 2, remote.refCalls["groups"])
}

func TestReferenceService_TestConnection(t *testing.T) {
	remote := newFakeRemote()
	svc := NewReferenceService(remote, time.Minute)
	ctx := context.Background()

	_, err := svc.PriceTypes(ctx)
	require.NoError(t, err)

	remote.connErr = errors.New("401 unauthorized")
	assert.Error(t, svc.TestConnection(ctx))
	_, _ = svc.PriceTypes(ctx)
	assert.Equal(t, 1, remote.refCalls["pricetypes"], "failed test keeps the cache")

	remote.connErr = nil
	require.NoError(t, svc.TestConnection(ctx))
	_, _ = svc.PriceTypes(ctx)
	assert.Equal(t, 2, remote.refCalls["pricetypes"], "successful test drops the cache")
}
