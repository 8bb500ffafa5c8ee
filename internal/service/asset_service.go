package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/taskerr"
)

// AssetService manages the deduplicating watermark logo store. Identical
// bytes uploaded any number of times map to one file and one index row.
type AssetService struct {
	assets  repository.AssetRepository
	store   *storage.AssetStore
	maxSize int64
	logger  *slog.Logger
}

// NewAssetService creates an AssetService. maxSize bounds accepted logo
// uploads in bytes.
func NewAssetService(assets repository.AssetRepository, store *storage.AssetStore, maxSize int64, logger *slog.Logger) *AssetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetService{
		assets:  assets,
		store:   store,
		maxSize: maxSize,
		logger:  logger,
	}
}

// SaveLogo validates and stores logo bytes, deduplicating by content hash.
// isNew reports whether this upload created the asset or matched an
// existing one.
func (s *AssetService) SaveLogo(ctx context.Context, data []byte) (asset *models.LogoAsset, isNew bool, err error) {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, false, taskerr.Newf(taskerr.CodePayloadTooLarge, "logo exceeds %d bytes", s.maxSize)
	}

	info, err := s.store.Inspect(data)
	if err != nil {
		return nil, false, taskerr.Wrap(taskerr.CodeBadRequest, "unsupported logo image", err)
	}

	existing, err := s.assets.GetByHash(ctx, info.ContentHash)
	if err != nil {
		return nil, false, fmt.Errorf("looking up logo asset: %w", err)
	}
	if existing != nil {
		if err := s.assets.Touch(ctx, existing.ID); err != nil {
			return nil, false, fmt.Errorf("touching logo asset: %w", err)
		}
		return existing, false, nil
	}

	path, err := s.store.Put(info, data)
	if err != nil {
		return nil, false, fmt.Errorf("storing logo file: %w", err)
	}

	asset = &models.LogoAsset{
		ContentHash: info.ContentHash,
		Path:        path,
		Ext:         info.Ext,
		Width:       info.Width,
		Height:      info.Height,
		SizeBytes:   info.SizeBytes,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		// A concurrent upload of the same bytes may have won the insert; the
		// file write is idempotent, so the existing row is the answer.
		if existing, lookupErr := s.assets.GetByHash(ctx, info.ContentHash); lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("recording logo asset: %w", err)
	}
	return asset, true, nil
}

// Resolve returns the asset for a content hash, or nil when unknown.
func (s *AssetService) Resolve(ctx context.Context, contentHash string) (*models.LogoAsset, error) {
	return s.assets.GetByHash(ctx, contentHash)
}

// ResolvePath returns the absolute file path for a referenced logo and marks
// it used so the sweep keeps it alive.
func (s *AssetService) ResolvePath(ctx context.Context, contentHash string) (string, error) {
	asset, err := s.assets.GetByHash(ctx, contentHash)
	if err != nil {
		return "", fmt.Errorf("resolving logo reference: %w", err)
	}
	if asset == nil {
		return "", taskerr.New(taskerr.CodeBadRequest, "unknown logo reference")
	}
	if err := s.assets.Touch(ctx, asset.ID); err != nil {
		s.logger.Warn("touching logo asset failed",
			slog.String("content_hash", asset.ContentHash),
			slog.String("error", err.Error()),
		)
	}
	return s.store.AbsolutePath(asset.Path)
}

// SweepUnused removes assets not referenced since the cutoff, file first so a
// failed file delete leaves the row for the next sweep.
func (s *AssetService) SweepUnused(ctx context.Context, cutoff time.Time) (int, error) {
	unused, err := s.assets.ListUnusedSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing unused assets: %w", err)
	}

	removed := 0
	for _, asset := range unused {
		if err := s.store.Delete(asset.Path); err != nil {
			s.logger.Warn("deleting asset file failed",
				slog.String("path", asset.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.assets.Delete(ctx, asset.ID); err != nil {
			s.logger.Warn("deleting asset record failed",
				slog.String("content_hash", asset.ContentHash),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	return removed, nil
}
