package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"gorm.io/gorm"
)

// assetRepo implements AssetRepository using GORM.
type assetRepo struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *assetRepo {
	return &assetRepo{db: db}
}

// Create persists a new asset record.
func (r *assetRepo) Create(ctx context.Context, asset *models.LogoAsset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("creating asset: %w", err)
	}
	return nil
}

// GetByHash retrieves an asset by content hash.
func (r *assetRepo) GetByHash(ctx context.Context, contentHash string) (*models.LogoAsset, error) {
	var asset models.LogoAsset
	if err := r.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting asset by hash: %w", err)
	}
	return &asset, nil
}

// Touch updates the asset's last-used timestamp.
func (r *assetRepo) Touch(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Model(&models.LogoAsset{}).Where("id = ?", id).
		Update("last_used_at", models.Now()).Error; err != nil {
		return fmt.Errorf("touching asset: %w", err)
	}
	return nil
}

// ListUnusedSince returns assets not used since the cutoff.
func (r *assetRepo) ListUnusedSince(ctx context.Context, cutoff time.Time) ([]*models.LogoAsset, error) {
	var assets []*models.LogoAsset
	if err := r.db.WithContext(ctx).
		Where("last_used_at < ?", cutoff).
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("listing unused assets: %w", err)
	}
	return assets, nil
}

// Delete removes an asset record.
func (r *assetRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.LogoAsset{}).Error; err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	return nil
}

// Ensure assetRepo implements AssetRepository at compile time.
var _ AssetRepository = (*assetRepo)(nil)
