// Package service implements the application services between the HTTP
// handlers and the repositories.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/voxsub/voxsub/internal/repository"
)

// ErrTokenInvalid covers every unusable token: malformed, bad signature, or
// past its TTL. The classes are deliberately not distinguished to callers.
var ErrTokenInvalid = errors.New("download token invalid or expired")

// TokenService issues and redeems single-use download tokens. Tokens are
// fernet-signed and carry their artifact key; statelessness means issuance
// writes nothing, and single use is enforced at redemption time through the
// redemption index.
type TokenService struct {
	key         *fernet.Key
	ttl         time.Duration
	redemptions repository.TokenRepository
	logger      *slog.Logger
}

// tokenClaims is the signed token payload.
type tokenClaims struct {
	TaskID      string `json:"task_id"`
	ArtifactKey string `json:"artifact_key"`
}

// NewTokenService creates a TokenService. An empty signingKey generates an
// ephemeral key, which invalidates outstanding tokens on restart.
func NewTokenService(signingKey string, ttl time.Duration, redemptions repository.TokenRepository, logger *slog.Logger) (*TokenService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var key *fernet.Key
	if signingKey == "" {
		key = &fernet.Key{}
		if err := key.Generate(); err != nil {
			return nil, fmt.Errorf("generating token signing key: %w", err)
		}
		logger.Warn("tokens.signing_key not set, generated an ephemeral key; tokens will not survive restarts")
	} else {
		var err error
		key, err = fernet.DecodeKey(signingKey)
		if err != nil {
			return nil, fmt.Errorf("decoding token signing key: %w", err)
		}
	}

	return &TokenService{
		key:         key,
		ttl:         ttl,
		redemptions: redemptions,
		logger:      logger,
	}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token granting one download of the artifact.
func (s *TokenService) Issue(taskID, artifactKey string) (string, error) {
	payload, err := json.Marshal(tokenClaims{TaskID: taskID, ArtifactKey: artifactKey})
	if err != nil {
		return "", fmt.Errorf("marshaling token claims: %w", err)
	}
	tok, err := fernet.EncryptAndSign(payload, s.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(tok), nil
}

// Redeem verifies the token and consumes it. The second presentation of the
// same token returns models.ErrTokenAlreadyRedeemed.
func (s *TokenService) Redeem(ctx context.Context, token string) (artifactKey string, err error) {
	payload := fernet.VerifyAndDecrypt([]byte(token), s.ttl, []*fernet.Key{s.key})
	if payload == nil {
		return "", ErrTokenInvalid
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", ErrTokenInvalid
	}

	sum := sha256.Sum256([]byte(token))
	if err := s.redemptions.Redeem(ctx, hex.EncodeToString(sum[:]), claims.ArtifactKey); err != nil {
		return "", err
	}
	return claims.ArtifactKey, nil
}
