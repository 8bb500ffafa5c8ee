package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tokenRepo implements TokenRepository using GORM.
type tokenRepo struct {
	db *gorm.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *gorm.DB) *tokenRepo {
	return &tokenRepo{db: db}
}

// Redeem records a token hash as consumed. The unique index on token_hash
// makes the insert the single-use gate: a conflicting insert means the token
// was redeemed before.
func (r *tokenRepo) Redeem(ctx context.Context, tokenHash, artifactKey string) error {
	redemption := &models.TokenRedemption{
		TokenHash:   tokenHash,
		ArtifactKey: artifactKey,
		ConsumedAt:  models.Now(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoNothing: true,
		}).
		Create(redemption)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) || isUniqueViolation(result.Error) {
			return models.ErrTokenAlreadyRedeemed
		}
		return fmt.Errorf("redeeming token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrTokenAlreadyRedeemed
	}
	return nil
}

// isUniqueViolation catches unique-constraint errors from drivers that do not
// map them to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// DeleteOlderThan removes redemption records past their usefulness.
func (r *tokenRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("consumed_at < ?", before).
		Delete(&models.TokenRedemption{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old token redemptions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure tokenRepo implements TokenRepository at compile time.
var _ TokenRepository = (*tokenRepo)(nil)
