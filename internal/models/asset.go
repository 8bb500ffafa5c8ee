package models

import "gorm.io/gorm"

// LogoAsset is a user-supplied watermark image, deduplicated by content hash.
// Identical bytes uploaded twice map to a single row and a single file.
type LogoAsset struct {
	BaseModel

	// ContentHash is the hex SHA-256 of the image bytes.
	ContentHash string `gorm:"not null;uniqueIndex;size:64" json:"content_hash"`

	// Path is the sandbox-relative path of the stored file.
	Path string `gorm:"not null;size:512" json:"path"`

	// Ext is the file extension including the leading dot.
	Ext string `gorm:"size:10" json:"ext"`

	// Width and Height are the decoded image dimensions.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// SizeBytes is the stored file size.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// LastUsedAt is bumped whenever a task references this asset.
	LastUsedAt Time `gorm:"index" json:"last_used_at"`
}

// TableName returns the table name for LogoAsset.
func (LogoAsset) TableName() string {
	return "logo_assets"
}

// BeforeCreate is a GORM hook that stamps LastUsedAt.
func (a *LogoAsset) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if a.LastUsedAt.IsZero() {
		a.LastUsedAt = Now()
	}
	return nil
}
