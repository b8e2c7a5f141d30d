package chunkstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/lib/checksum"
	"github.com/dkovac/depot/lib/cmap"
	"github.com/dkovac/depot/lib/logger"
)

var log, _ = logger.New("chunkstore")

const DefaultChunkSize = 4096

// ChunkStore splits files into fixed-size chunks addressed by SHA-256
// digest and stores each unique chunk once. The digest map is shared
// across all files handled by one store, which is what makes cross-file
// deduplication possible. The store is append-only: chunks referenced
// by deleted files are never reclaimed.
type ChunkStore struct {
	ChunkSize int

	// Chunks maps chunk digest to the path the chunk is persisted at.
	Chunks cmap.Map[string, string]
	// Files maps file key to its ordered chunk digest list.
	Files cmap.Map[string, []string]

	index *IndexStore
	mu    sync.Mutex
}

// NewChunkStore builds a store with the given chunk size. index may be
// nil, in which case indexes live only in memory.
func NewChunkStore(chunkSize int, index *IndexStore) *ChunkStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &ChunkStore{
		ChunkSize: chunkSize,
		Chunks:    cmap.NewMap[string, string](),
		Files:     cmap.NewMap[string, []string](),
		index:     index,
	}
}

// ChunkFile streams path in fixed-size windows, calling fn once per
// chunk in file order. The final window may be shorter. The file is
// never read into memory whole.
func (cs *ChunkStore) ChunkFile(path string, fn func(chunk model.Chunk) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, cs.ChunkSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			chunk := model.Chunk{
				Digest: checksum.Sum(data),
				Data:   data,
			}
			if cbErr := fn(chunk); cbErr != nil {
				return cbErr
			}
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Deduplicate chunks the file and persists only chunks whose digest has
// not been seen before, under <storageDir>/chunks/<digest>. The file's
// chunk index is recorded under its path, replacing any previous index
// for that path.
func (cs *ChunkStore) Deduplicate(ctx context.Context, filePath, storageDir string) (*model.DedupResult, error) {
	chunkDir := filepath.Join(storageDir, "chunks")
	err := os.MkdirAll(chunkDir, 0750)
	if err != nil {
		return nil, err
	}

	result := &model.DedupResult{
		FilePath: filePath,
	}
	digests := make([]string, 0)

	err = cs.ChunkFile(filePath, func(chunk model.Chunk) error {
		digests = append(digests, chunk.Digest)
		result.TotalChunks++
		result.TotalSize += int64(len(chunk.Data))

		// Check-then-store must be atomic or two writers could both
		// count the same digest as new.
		cs.mu.Lock()
		defer cs.mu.Unlock()

		_, exists := cs.Chunks.Get(chunk.Digest)
		if exists {
			result.DuplicateChunks++
			result.SavedSize += int64(len(chunk.Data))
			return nil
		}

		chunkPath := filepath.Join(chunkDir, chunk.Digest)
		if writeErr := os.WriteFile(chunkPath, chunk.Data, 0640); writeErr != nil {
			return writeErr
		}

		cs.Chunks.Set(chunk.Digest, chunkPath)
		result.NewChunks++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.TotalSize > 0 {
		result.DedupRatio = float64(result.SavedSize) / float64(result.TotalSize)
	}

	cs.Files.Set(filePath, digests)
	if cs.index != nil {
		index := model.FileChunkIndex{FileKey: filePath, Digests: digests}
		if putErr := cs.index.Put(ctx, index); putErr != nil {
			log.Errorw("dedup", "error", "failed to persist chunk index", "file", filePath, "err", putErr)
		}
	}

	log.Infow("dedup",
		"file", filePath,
		"totalChunks", result.TotalChunks,
		"newChunks", result.NewChunks,
		"duplicateChunks", result.DuplicateChunks,
	)

	return result, nil
}

// Reconstruct rebuilds the file registered under fileKey by
// concatenating its chunks in index order. The output is written to a
// temp path and renamed only on full success, so outputPath is either
// complete or absent.
func (cs *ChunkStore) Reconstruct(ctx context.Context, fileKey, outputPath string) bool {
	digests, exists := cs.Files.Get(fileKey)
	if !exists && cs.index != nil {
		index, err := cs.index.Get(ctx, fileKey)
		if err == nil {
			digests = &index.Digests
			exists = true
		}
	}
	if !exists {
		return false
	}

	tmpPath := outputPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return false
	}

	abort := func() bool {
		out.Close()
		os.Remove(tmpPath)
		return false
	}

	for _, digest := range *digests {
		chunkPath, ok := cs.Chunks.Get(digest)
		if !ok {
			return abort()
		}

		data, err := os.ReadFile(*chunkPath)
		if err != nil {
			return abort()
		}

		_, err = out.Write(data)
		if err != nil {
			return abort()
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return false
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return false
	}

	return true
}

func (cs *ChunkStore) Stats() model.DedupStats {
	return model.DedupStats{
		TotalChunks: cs.Chunks.Len(),
		TotalFiles:  cs.Files.Len(),
		ChunkSize:   cs.ChunkSize,
	}
}
