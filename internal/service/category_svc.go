package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// CategoryService mirrors remote product folders into local categories.
type CategoryService struct {
	api        CatalogAPI
	categories repository.CategoryRepository
	options    repository.OptionRepository
	sessions   *SessionManager
	cfg        config.CatalogConfig
	now        func() time.Time
}

func NewCategoryService(api CatalogAPI, categories repository.CategoryRepository, options repository.OptionRepository,
	sessions *SessionManager, cfg config.CatalogConfig) *CategoryService {
	return &CategoryService{
		api:        api,
		categories: categories,
		options:    options,
		sessions:   sessions,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SyncCategories runs a category pass in its own session.
func (s *CategoryService) SyncCategories(ctx context.Context) (*SyncResult, error) {
	if !s.cfg.SyncGroups {
		logger.Log.Info("[CategorySync] category synchronization is disabled")
		return nil, ErrSyncDisabled
	}
	sess, err := s.sessions.Begin(ctx, KindProducts)
	if err != nil {
		return nil, err
	}
	defer sess.End()
	return s.run(sess), nil
}

// run creates parents before children. A folder whose parent cannot be
// resolved is created at the top level; folders whose write failed are
// counted as skipped.
func (s *CategoryService) run(sess *Session) *SyncResult {
	ctx := sess.Context()
	if !s.api.IsConfigured() {
		logger.Log.Error("[CategorySync] API not configured")
		return &SyncResult{Success: false, Message: moysklad.ErrAPINotConfigured.Error()}
	}
	logger.Log.Info("[CategorySync] starting category synchronization")

	folders, err := s.api.ListProductFolders(ctx)
	if err != nil {
		logger.Log.Error("[CategorySync] failed to list product folders", zap.Error(err))
		return &SyncResult{Success: false, Message: failureMessage(err)}
	}
	if len(folders) == 0 {
		logger.Log.Info("[CategorySync] no categories found remotely")
		return &SyncResult{Success: true, Message: "no categories found remotely"}
	}

	var stats SyncStats
	byID := make(map[string]moysklad.ProductFolder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	processed := make(map[string]int64, len(folders))
	visiting := make(map[string]bool)

	var resolve func(id string) (int64, bool)
	resolve = func(id string) (int64, bool) {
		if localID, ok := processed[id]; ok {
			return localID, true
		}
		folder, ok := byID[id]
		if !ok {
			// parent outside the listing, use it only if it already exists locally
			existing, err := s.categories.FindByRemoteID(ctx, id)
			if err != nil || existing == nil {
				logger.Log.Error("[CategorySync] parent category not found", zap.String("remote_id", id))
				return 0, false
			}
			return existing.ID, true
		}
		if visiting[id] {
			logger.Log.Error("[CategorySync] category cycle detected", zap.String("remote_id", id))
			return 0, false
		}
		visiting[id] = true
		defer delete(visiting, id)

		var parentID int64
		if pid := folder.ParentID(); pid != "" {
			var ok bool
			if parentID, ok = resolve(pid); !ok {
				logger.Log.Warn("[CategorySync] placing category at top level",
					zap.String("name", folder.Name), zap.String("parent_remote_id", pid))
				parentID = 0
			}
		}
		localID, err := s.upsert(ctx, folder, parentID, &stats)
		if err != nil {
			logger.Log.Warn("[CategorySync] category processing failed",
				zap.String("name", folder.Name), zap.Error(err))
			return 0, false
		}
		processed[id] = localID
		return localID, true
	}

	for i, f := range folders {
		if sess.Stopped() {
			logger.Log.Info("[CategorySync] stopped by user")
			return stoppedResult(sess, stats)
		}
		if _, done := processed[f.ID]; !done {
			resolve(f.ID)
		}
		sess.SetProgress(i+1, len(folders), f.Name)
	}

	for _, f := range folders {
		if _, done := processed[f.ID]; !done {
			stats.Skipped++
		}
	}

	if err := s.options.SetTime(ctx, model.OptLastCategorySync, s.now()); err != nil {
		logger.Log.Warn("[CategorySync] failed to record sync time", zap.Error(err))
	}
	logger.Log.Info("[CategorySync] category synchronization completed",
		zap.Int("created", stats.Created), zap.Int("updated", stats.Updated), zap.Int("skipped", stats.Skipped))

	return &SyncResult{
		Success:   true,
		Message:   fmt.Sprintf("categories synchronized: %d created, %d updated, %d skipped", stats.Created, stats.Updated, stats.Skipped),
		Stats:     stats,
		SessionID: sess.ID,
	}
}

func (s *CategoryService) upsert(ctx context.Context, f moysklad.ProductFolder, parentID int64, stats *SyncStats) (int64, error) {
	existing, err := s.categories.FindByRemoteID(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		existing.Name = f.Name
		existing.Description = f.Description
		existing.ParentID = parentID
		if err := s.categories.Update(ctx, existing); err != nil {
			return 0, err
		}
		stats.Updated++
		return existing.ID, nil
	}

	category := &model.Category{
		Name:        f.Name,
		Slug:        repository.Slugify(f.Name),
		Description: f.Description,
		ParentID:    parentID,
		RemoteID:    f.ID,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return 0, err
	}
	stats.Created++
	return category.ID, nil
}

// LocalID returns the local category for a remote folder id, 0 when unknown.
func (s *CategoryService) LocalID(ctx context.Context, remoteID string) int64 {
	if remoteID == "" {
		return 0
	}
	c, err := s.categories.FindByRemoteID(ctx, remoteID)
	if err != nil || c == nil {
		return 0
	}
	return c.ID
}
