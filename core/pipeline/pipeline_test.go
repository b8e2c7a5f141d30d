package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovac/depot/core/model"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &Config{}
	cfg.Storage.BasePath = filepath.Join(dir, "depot")
	cfg.Storage.Locations = []string{
		filepath.Join(dir, "replica-a"),
		filepath.Join(dir, "replica-b"),
	}
	cfg.Storage.MaxCapacityBytes = 1 << 20
	cfg.Chunks.Size = 1024
	cfg.Compression.Algorithm = "zstd"
	cfg.Compression.Level = 6
	cfg.Replication.Factor = 2

	return cfg
}

func newTestSystem(t *testing.T, cfg *Config) *System {
	t.Helper()

	system, err := NewSystem(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { system.Close() })

	return system
}

func writeInput(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0640))

	return path
}

func TestStoreFileAllStages(t *testing.T) {
	system := newTestSystem(t, testConfig(t))
	ctx := context.Background()

	path := writeInput(t, bytes.Repeat([]byte("pipeline payload "), 500))

	record, err := system.StoreFile(ctx, path, StoreOptions{Deduplicate: true, Compress: true, Replicate: true})
	require.NoError(t, err)

	require.Len(t, record.Stages, 3)
	assert.Equal(t, StageDeduplication, record.Stages[0].Name)
	assert.Equal(t, StageCompression, record.Stages[1].Name)
	assert.Equal(t, StageReplication, record.Stages[2].Name)

	require.NotNil(t, record.Stages[2].Replication)
	assert.Equal(t, record.Stages[2].Replication.ContentID, record.ContentID)
	assert.Equal(t, 2, record.Stages[2].Replication.ReplicationAchieved)

	registered, ok := system.Record(record.ContentID)
	require.True(t, ok)
	assert.Equal(t, record.ID, registered.ID)
}

func TestStoreFileSkippedStages(t *testing.T) {
	system := newTestSystem(t, testConfig(t))
	ctx := context.Background()

	data := bytes.Repeat([]byte("skip stages "), 100)
	path := writeInput(t, data)

	record, err := system.StoreFile(ctx, path, StoreOptions{})
	require.NoError(t, err)

	assert.Empty(t, record.Stages)

	// With every stage skipped the content id is the hash of the
	// original file itself, and retrieval comes straight back from a
	// replica store later on.
	require.Len(t, record.ContentID, 64)

	outputPath := filepath.Join(t.TempDir(), "round.bin")

	replicated, err := system.StoreFile(ctx, path, StoreOptions{Replicate: true})
	require.NoError(t, err)
	assert.Equal(t, record.ContentID, replicated.ContentID)

	require.True(t, system.Retrieve(replicated.ContentID, outputPath))
	restored, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, data, restored)
}

func TestContentIDUsesCompressedFileWhenNotReplicating(t *testing.T) {
	system := newTestSystem(t, testConfig(t))
	ctx := context.Background()

	path := writeInput(t, bytes.Repeat([]byte("compress only "), 200))

	record, err := system.StoreFile(ctx, path, StoreOptions{Compress: true})
	require.NoError(t, err)

	require.Len(t, record.Stages, 1)
	stage := record.Stages[0]
	require.NotNil(t, stage.Compression)
	require.False(t, stage.Compression.Failed())

	// The registry key is the hash of the compressed output, not of
	// the original file.
	plain, err := system.StoreFile(ctx, path, StoreOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, plain.ContentID, record.ContentID)
}

func TestCapacityAccountingUsesOriginalSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.MaxCapacityBytes = 100000
	system := newTestSystem(t, cfg)
	ctx := context.Background()

	// Highly compressible: physical footprint shrinks, logical
	// accounting must not.
	first := writeInput(t, bytes.Repeat([]byte("A"), 10000))
	second := writeInput(t, bytes.Repeat([]byte("B"), 15000))

	_, err := system.StoreFile(ctx, first, StoreOptions{Deduplicate: true, Compress: true})
	require.NoError(t, err)

	record, err := system.StoreFile(ctx, second, StoreOptions{Compress: true})
	require.NoError(t, err)

	assert.Equal(t, int64(25000), record.TotalSizeBytes)
	assert.InDelta(t, 25.0, record.CapacityUsedPercent, 1e-9)

	stats := system.Stats()
	assert.Equal(t, int64(25000), stats.TotalSizeBytes)
	assert.InDelta(t, 25.0, stats.CapacityUsedPercent, 1e-9)
	assert.Equal(t, 2, stats.TotalFiles)
}

func TestReplicationTotalFailureStillReturnsRecord(t *testing.T) {
	cfg := testConfig(t)
	system := newTestSystem(t, cfg)
	ctx := context.Background()

	// Turn both replica directories into plain files so every copy
	// fails.
	for _, location := range cfg.Storage.Locations {
		require.NoError(t, os.RemoveAll(location))
		require.NoError(t, os.WriteFile(location, []byte("blocker"), 0640))
	}

	path := writeInput(t, []byte("doomed replication"))

	record, err := system.StoreFile(ctx, path, StoreOptions{Replicate: true})
	require.NoError(t, err)

	require.Len(t, record.Stages, 1)
	require.NotNil(t, record.Stages[0].Replication)
	assert.Equal(t, 0, record.Stages[0].Replication.ReplicationAchieved)
	assert.Len(t, record.Stages[0].Replication.FailedLocations, 2)
	assert.NotEmpty(t, record.ContentID)
}

func TestDedupReconstructRoundTripThroughPipeline(t *testing.T) {
	system := newTestSystem(t, testConfig(t))
	ctx := context.Background()

	original := bytes.Repeat([]byte("chunked content "), 400)
	path := writeInput(t, original)

	_, err := system.StoreFile(ctx, path, StoreOptions{Deduplicate: true})
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "restored.bin")
	require.True(t, system.Reconstruct(ctx, path, outputPath))

	restored, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestSmartCollection(t *testing.T) {
	system := newTestSystem(t, testConfig(t))
	ctx := context.Background()

	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "doc.txt"), bytes.Repeat([]byte("doc "), 100), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(source, "data.json"), []byte(`{"k":"v"}`), 0640))

	stats, err := system.SmartCollection(ctx, source, true, true, true)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Errors)

	// Every organized copy went through the pipeline with
	// replication off.
	storageStats := system.Stats()
	assert.Equal(t, 2, storageStats.TotalFiles)
	assert.Greater(t, storageStats.Dedup.TotalChunks, 0)

	system.Registry.Range(func(_, v any) bool {
		record := v.(model.PipelineRecord)
		for _, stage := range record.Stages {
			assert.NotEqual(t, StageReplication, stage.Name)
		}
		return true
	})
}

func TestNewSystemRejectsUnknownAlgorithm(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression.Algorithm = "brotli"

	_, err := NewSystem(cfg)
	assert.Error(t, err)
}
