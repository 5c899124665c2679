package models

import "time"

// Upload status values for FileUpload. The state machine only moves forward:
// UPLOADING on first chunk, MERGED after composition, then row deletion.
const (
	StatusUploading = 0
	StatusMerged    = 1
)

// FileUpload is the record of one uploaded document, keyed by the MD5 of the
// full object plus the owner's login name.
type FileUpload struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5   string     `gorm:"size:32;not null;uniqueIndex:uk_file_user" json:"file_md5"`
	UserID    string     `gorm:"size:255;not null;uniqueIndex:uk_file_user" json:"user_id"`
	FileName  string     `gorm:"size:512;not null" json:"file_name"`
	TotalSize int64      `gorm:"not null" json:"total_size"`
	Status    int        `gorm:"default:0" json:"status"`
	OrgTag    string     `gorm:"size:255" json:"org_tag"`
	IsPublic  bool       `gorm:"default:false" json:"is_public"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

// TableName returns the table name for FileUpload.
func (FileUpload) TableName() string {
	return "file_upload"
}

// IsMerged reports whether the final object has been composed.
func (f *FileUpload) IsMerged() bool {
	return f.Status == StatusMerged
}

// ChunkInfo records one acknowledged chunk of a file: its index within the
// parent fingerprint, its own fingerprint, and where the chunk object lives.
type ChunkInfo struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5     string    `gorm:"size:32;not null;uniqueIndex:uk_chunk_index" json:"file_md5"`
	ChunkIndex  int       `gorm:"not null;uniqueIndex:uk_chunk_index" json:"chunk_index"`
	ChunkMD5    string    `gorm:"size:32;not null" json:"chunk_md5"`
	StoragePath string    `gorm:"size:512;not null" json:"storage_path"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ChunkInfo.
func (ChunkInfo) TableName() string {
	return "chunk_info"
}

// DocumentVector is one passage produced by the splitter, persisted before
// embedding so ingestion can resume idempotently. Immutable after creation;
// removed only via cascade from its FileUpload.
type DocumentVector struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5      string    `gorm:"size:32;not null;index" json:"file_md5"`
	ChunkID      int       `gorm:"not null" json:"chunk_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	ModelVersion string    `gorm:"size:255" json:"model_version"`
	UserID       string    `gorm:"size:255;not null" json:"user_id"`
	OrgTag       string    `gorm:"size:255" json:"org_tag"`
	IsPublic     bool      `gorm:"default:false" json:"is_public"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for DocumentVector.
func (DocumentVector) TableName() string {
	return "document_vectors"
}
