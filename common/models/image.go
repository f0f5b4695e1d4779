package models

import (
	"time"

	"github.com/google/uuid"
)

// Image mirrors the authoritative image record.
// Maps to: images table
type Image struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	OwnerID       string     `db:"owner_id" json:"owner_id"`
	SHA256        string     `db:"sha256" json:"sha256"`
	Mime          string     `db:"mime" json:"mime"`
	Width         int        `db:"width" json:"width"`
	Height        int        `db:"height" json:"height"`
	OrigSizeBytes int64      `db:"orig_size_bytes" json:"orig_size_bytes"`
	StoragePath   string     `db:"storage_path" json:"storage_path"`
	IsPublic      bool       `db:"is_public" json:"is_public"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
