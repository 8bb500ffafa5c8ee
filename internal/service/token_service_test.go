package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTokenService(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TokenRedemption{}))

	svc, err := NewTokenService("", ttl, repository.NewTokenRepository(db), nil)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndRedeem(t *testing.T) {
	svc := newTokenService(t, time.Minute)
	ctx := context.Background()

	token, err := svc.Issue("task-1", "task-1/talk.en.srt")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	key, err := svc.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "task-1/talk.en.srt", key)
}

func TestTokenService_SingleUse(t *testing.T) {
	svc := newTokenService(t, time.Minute)
	ctx := context.Background()

	token, err := svc.Issue("task-1", "task-1/talk.en.srt")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, token)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, models.ErrTokenAlreadyRedeemed)
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTokenService(t, time.Nanosecond)
	ctx := context.Background()

	token, err := svc.Issue("task-1", "task-1/talk.en.srt")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_Garbage(t *testing.T) {
	svc := newTokenService(t, time.Minute)

	_, err := svc.Redeem(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_KeysDoNotCross(t *testing.T) {
	a := newTokenService(t, time.Minute)
	b := newTokenService(t, time.Minute)

	token, err := a.Issue("task-1", "task-1/talk.en.srt")
	require.NoError(t, err)

	// A token signed by one instance's key is garbage to another.
	_, err = b.Redeem(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
