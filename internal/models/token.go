package models

// TokenRedemption records a consumed download token. Tokens are fernet-signed
// and verified statelessly; single use is enforced by inserting the token's
// hash here on first redemption, so a second redemption conflicts.
type TokenRedemption struct {
	BaseModel

	// TokenHash is the hex SHA-256 of the opaque token string.
	TokenHash string `gorm:"not null;uniqueIndex;size:64" json:"token_hash"`

	// ArtifactKey names the artifact the token granted.
	ArtifactKey string `gorm:"not null;size:512" json:"artifact_key"`

	// ConsumedAt is when the token was redeemed.
	ConsumedAt Time `json:"consumed_at"`
}

// TableName returns the table name for TokenRedemption.
func (TokenRedemption) TableName() string {
	return "token_redemptions"
}
