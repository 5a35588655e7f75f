package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// ImageService attaches remote product images to local products.
type ImageService struct {
	api      ImageAPI
	products repository.ProductRepository
	storage  StorageProvider
}

// NewImageService creates the service. storage may be nil.
func NewImageService(api ImageAPI, products repository.ProductRepository, storage StorageProvider) *ImageService {
	return &ImageService{api: api, products: products, storage: storage}
}

// SyncProductImages imports the images of p. Only the first image is taken
// unless all is set. An image whose source URL is already attached is not
// downloaded again. The first image is the primary one.
func (s *ImageService) SyncProductImages(ctx context.Context, sess *Session, productID int64, p *moysklad.Product, all bool) (int, error) {
	if p.Images == nil || (len(p.Images.Rows) == 0 && p.Images.Meta.Href == "") {
		return 0, nil
	}
	images := p.Images.Rows
	if len(images) == 0 {
		var err error
		if images, err = s.api.ListImages(ctx, p.Images.Meta.Href); err != nil {
			return 0, fmt.Errorf("list images: %w", err)
		}
	}

	attached := 0
	for i, img := range images {
		if i > 0 && !all {
			break
		}
		if sess.Stopped() {
			return attached, ErrStopped
		}
		src := img.SourceURL()
		if src == "" {
			continue
		}

		existing, err := s.products.FindImageBySource(ctx, productID, src)
		if err != nil {
			return attached, err
		}
		if existing != nil {
			if existing.Position != i || existing.IsPrimary != (i == 0) {
				existing.Position = i
				existing.IsPrimary = i == 0
				if err := s.products.UpdateImage(ctx, existing); err != nil {
					return attached, err
				}
			}
			attached++
			continue
		}

		url, err := s.store(ctx, productID, img, src)
		if err != nil {
			logger.Log.Warn("[ImageSync] image download failed",
				zap.Int64("product_id", productID), zap.String("source", src), zap.Error(err))
			continue
		}
		if err := s.products.CreateImage(ctx, &model.ProductImage{
			ProductID: productID,
			SourceURL: src,
			URL:       url,
			Title:     img.Title,
			Position:  i,
			IsPrimary: i == 0,
		}); err != nil {
			return attached, err
		}
		attached++
	}
	return attached, nil
}

// store mirrors the image when a storage provider is configured.
func (s *ImageService) store(ctx context.Context, productID int64, img moysklad.Image, src string) (string, error) {
	if s.storage == nil {
		return src, nil
	}
	data, contentType, err := s.api.Download(ctx, src)
	if err != nil {
		return "", err
	}
	name := img.Filename
	if name == "" {
		name = fmt.Sprintf("product-%d", productID)
	}
	return s.storage.Upload(ctx, data, name, contentType)
}
