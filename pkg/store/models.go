package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ProjectModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerHash   string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID         string `gorm:"primaryKey"`
	ProjectID  string `gorm:"not null;index"`
	Filename   string `gorm:"not null"`
	StorageKey string
	SizeBytes  int64 `gorm:"not null"`
	PageCount  int
	ChunkCount int
	CreatedAt  time.Time `gorm:"not null"`
}

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	ProjectID  string           `gorm:"not null;index"`
	DocumentID string           `gorm:"not null;index"`
	Seq        int              `gorm:"not null"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt  time.Time        `gorm:"not null;index"`
}
