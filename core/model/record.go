package model

import "github.com/google/uuid"

// StageResult is one step of the storage pipeline. Exactly one of the
// stage payloads is set, or Error when the stage failed outright.
type StageResult struct {
	Name        string
	Dedup       *DedupResult
	Compression *CompressionResult
	Replication *StoreResult
	Error       string
}

// PipelineRecord is the per-call result trail of StoreFile. Immutable
// once returned; registered under ContentID for later retrieval.
type PipelineRecord struct {
	ID                  uuid.UUID
	OriginalFile        string
	OriginalSize        int64
	Stages              []StageResult
	ContentID           string
	TotalSizeBytes      int64
	CapacityUsedPercent float64
}

type StorageStats struct {
	TotalFiles          int
	TotalSizeBytes      int64
	MaxCapacityBytes    int64
	CapacityUsedPercent float64
	Dedup               DedupStats
}
