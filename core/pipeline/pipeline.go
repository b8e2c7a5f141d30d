package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dkovac/depot/core/catalog"
	"github.com/dkovac/depot/core/chunkstore"
	"github.com/dkovac/depot/core/compression"
	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/core/replication"
	"github.com/dkovac/depot/lib/checksum"
	"github.com/dkovac/depot/lib/cmap"
	"github.com/dkovac/depot/lib/logger"
)

var log, _ = logger.New("pipeline")

const (
	StageDeduplication = "deduplication"
	StageCompression   = "compression"
	StageReplication   = "replication"
)

// StoreOptions enables pipeline stages per call. Stage order is fixed:
// deduplicate, then compress, then replicate.
type StoreOptions struct {
	Deduplicate bool
	Compress    bool
	Replicate   bool
}

// System threads files through the storage pipeline and keeps every
// result in an in-memory registry keyed by content id.
type System struct {
	*chunkstore.ChunkStore
	*compression.Compressor
	*replication.Manager
	*catalog.Collector

	BasePath    string
	MaxCapacity int64

	Registry cmap.Map[string, model.PipelineRecord]

	indexStore   *chunkstore.IndexStore
	catalogStore *catalog.CatalogStore

	mu        sync.Mutex
	totalSize int64
}

func NewSystem(cfg *Config) (*System, error) {
	basePath := cfg.Storage.BasePath
	for _, dir := range []string{basePath, filepath.Join(basePath, "metadata")} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}

	metadataDir := filepath.Join(basePath, "metadata")
	indexStore, err := chunkstore.NewIndexStore(metadataDir)
	if err != nil {
		return nil, err
	}

	catalogStore, err := catalog.NewCatalogStore(metadataDir)
	if err != nil {
		return nil, err
	}

	algorithm, err := compression.ParseAlgorithm(cfg.Compression.Algorithm)
	if err != nil {
		return nil, err
	}

	locations := cfg.Storage.Locations
	if len(locations) == 0 {
		locations = []string{filepath.Join(basePath, "replicas")}
	}

	manager, err := replication.NewManager(locations, cfg.Replication.Factor)
	if err != nil {
		return nil, err
	}

	collector, err := catalog.NewCollector(filepath.Join(basePath, "organized"), catalogStore)
	if err != nil {
		return nil, err
	}

	return &System{
		ChunkStore:   chunkstore.NewChunkStore(cfg.Chunks.Size, indexStore),
		Compressor:   compression.NewCompressor(algorithm, cfg.Compression.Level),
		Manager:      manager,
		Collector:    collector,
		BasePath:     basePath,
		MaxCapacity:  cfg.Storage.MaxCapacityBytes,
		Registry:     cmap.NewMap[string, model.PipelineRecord](),
		indexStore:   indexStore,
		catalogStore: catalogStore,
	}, nil
}

// StoreFile runs path through the enabled stages in fixed order. A
// skipped or failed stage leaves the active file unchanged for the next
// one. Capacity accounting always uses the original size, so usage
// reflects logical data volume regardless of which stages ran.
func (s *System) StoreFile(ctx context.Context, path string, opts StoreOptions) (*model.PipelineRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	record := &model.PipelineRecord{
		ID:           uuid.New(),
		OriginalFile: path,
		OriginalSize: info.Size(),
		Stages:       make([]model.StageResult, 0),
	}

	activeFile := path

	if opts.Deduplicate {
		dedupDir := filepath.Join(s.BasePath, "deduplicated")
		dedupResult, err := s.Deduplicate(ctx, path, dedupDir)
		if err != nil {
			record.Stages = append(record.Stages, model.StageResult{
				Name:  StageDeduplication,
				Error: err.Error(),
			})
		} else {
			record.Stages = append(record.Stages, model.StageResult{
				Name:  StageDeduplication,
				Dedup: dedupResult,
			})
		}
	}

	if opts.Compress {
		compressedDir := filepath.Join(s.BasePath, "compressed")
		if err := os.MkdirAll(compressedDir, 0750); err != nil {
			return nil, err
		}

		outPath := filepath.Join(compressedDir, record.ID.String())
		compressResult := s.Compress(activeFile, outPath)
		if !compressResult.Failed() {
			activeFile = outPath
		}
		record.Stages = append(record.Stages, model.StageResult{
			Name:        StageCompression,
			Compression: compressResult,
			Error:       compressResult.Error,
		})
	}

	var contentID string
	if opts.Replicate {
		storeResult, err := s.Manager.Store(activeFile, "")
		if err != nil {
			record.Stages = append(record.Stages, model.StageResult{
				Name:  StageReplication,
				Error: err.Error(),
			})
		} else {
			record.Stages = append(record.Stages, model.StageResult{
				Name:        StageReplication,
				Replication: storeResult,
			})
			contentID = storeResult.ContentID
		}
	}

	if contentID == "" {
		contentID, err = checksum.File(activeFile)
		if err != nil {
			return nil, err
		}
	}
	record.ContentID = contentID

	s.mu.Lock()
	s.totalSize += record.OriginalSize
	total := s.totalSize
	s.mu.Unlock()

	record.TotalSizeBytes = total
	record.CapacityUsedPercent = float64(total) / float64(s.MaxCapacity) * 100

	s.Registry.Set(contentID, *record)

	log.Infow("store",
		"file", path,
		"contentID", contentID,
		"stages", len(record.Stages),
		"capacityUsedPercent", record.CapacityUsedPercent,
	)

	return record, nil
}

// SmartCollection organizes a whole directory and then runs every
// organized copy through the pipeline, replication off. Per-file
// pipeline failures are logged and skipped.
func (s *System) SmartCollection(ctx context.Context, sourceDir string, autoCategorize, dedup, compress bool) (*model.CollectStats, error) {
	stats := s.CollectAndOrganize(ctx, sourceDir, autoCategorize)

	if !dedup && !compress {
		return stats, nil
	}

	for _, entry := range stats.Entries {
		if entry.StoredPath == "" {
			continue
		}

		_, err := s.StoreFile(ctx, entry.StoredPath, StoreOptions{
			Deduplicate: dedup,
			Compress:    compress,
		})
		if err != nil {
			log.Errorw("smart-collection", "file", entry.StoredPath, "err", err)
		}
	}

	return stats, nil
}

// Record returns the pipeline record registered under a content id.
func (s *System) Record(contentID string) (*model.PipelineRecord, bool) {
	return s.Registry.Get(contentID)
}

func (s *System) Stats() model.StorageStats {
	s.mu.Lock()
	total := s.totalSize
	s.mu.Unlock()

	return model.StorageStats{
		TotalFiles:          s.Registry.Len(),
		TotalSizeBytes:      total,
		MaxCapacityBytes:    s.MaxCapacity,
		CapacityUsedPercent: float64(total) / float64(s.MaxCapacity) * 100,
		Dedup:               s.ChunkStore.Stats(),
	}
}

func (s *System) Close() error {
	if err := s.indexStore.Close(); err != nil {
		return err
	}

	return s.catalogStore.Close()
}
