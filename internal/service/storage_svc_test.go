package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/config"
)

func TestNewStorageProvider(t *testing.T) {
	p, err := NewStorageProvider(config.StorageConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewStorageProvider(config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewStorageProvider(config.StorageConfig{Provider: "ftp"})
	assert.Error(t, err)
}

func TestS3Storage_Keys(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	s := &S3Storage{bucket: "images", region: "eu-central-1", basePath: "catalog", now: func() time.Time { return fixed }}

	key := s.generateKey(".jpg")
	assert.True(t, strings.HasPrefix(key, "catalog/2026/03/14/"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)

	url := s.publicURL(key)
	assert.Equal(t, "https://images.s3.eu-central-1.amazonaws.com/"+key, url)
	assert.Equal(t, key, s.extractKey(url))
	assert.Empty(t, s.extractKey("https://elsewhere.example.com/a.jpg"))
}

func TestS3Storage_EndpointAndCDN(t *testing.T) {
	s := &S3Storage{bucket: "images", endpoint: "https://minio.local:9000", now: time.Now}
	assert.Equal(t, "https://minio.local:9000/images/a/b.png", s.publicURL("a/b.png"))
	assert.Equal(t, "a/b.png", s.extractKey("https://minio.local:9000/images/a/b.png"))

	s.cdnDomain = "cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/a/b.png", s.publicURL("a/b.png"))
	assert.Equal(t, "a/b.png", s.extractKey("https://cdn.example.com/a/b.png"))
}
