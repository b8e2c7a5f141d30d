package replication

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/lib/checksum"
)

func writeBlob(t *testing.T, dir string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, data, 0640))

	return path
}

func TestStoreReplicationFactorBound(t *testing.T) {
	dir := t.TempDir()
	locations := []string{
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
		filepath.Join(dir, "c"),
	}

	m, err := NewManager(locations, 2)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, []byte("replicate me")), "")
	require.NoError(t, err)

	assert.Len(t, result.StoredLocations, 2)
	assert.Equal(t, 2, result.ReplicationAchieved)
	assert.Empty(t, result.FailedLocations)

	// The third configured location never receives a copy.
	entries, err := os.ReadDir(locations[2])
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreShortLocationList(t *testing.T) {
	dir := t.TempDir()
	locations := []string{filepath.Join(dir, "only")}

	m, err := NewManager(locations, 3)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, []byte("short list")), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ReplicationAchieved)
}

func TestStoreDefaultsContentIDToSHA256(t *testing.T) {
	dir := t.TempDir()
	data := []byte("content addressed")

	m, err := NewManager([]string{filepath.Join(dir, "a")}, 1)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, data), "")
	require.NoError(t, err)

	assert.Equal(t, checksum.Sum(data), result.ContentID)
}

func TestStorePartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good")
	bad := filepath.Join(dir, "bad")

	m, err := NewManager([]string{good, bad}, 2)
	require.NoError(t, err)

	// Replace the second location dir with a plain file so the copy
	// into it fails.
	require.NoError(t, os.RemoveAll(bad))
	require.NoError(t, os.WriteFile(bad, []byte("in the way"), 0640))

	result, err := m.Store(writeBlob(t, dir, []byte("partial")), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ReplicationAchieved)
	require.Len(t, result.FailedLocations, 1)
	assert.Equal(t, bad, result.FailedLocations[0].Location)
	assert.NotEmpty(t, result.FailedLocations[0].Reason)
}

func TestRemoteLocationsAssumedStored(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager([]string{"s3://bucket/replicas", filepath.Join(dir, "local")}, 2)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, []byte("remote")), "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.ReplicationAchieved)
	assert.Equal(t, "s3://bucket/replicas/"+result.ContentID, result.StoredLocations[0])

	verify := m.Verify(result.ContentID)
	assert.Equal(t, 2, verify.Available)
	assert.Equal(t, 1, verify.RemoteAssumed)
	assert.Equal(t, model.HealthGood, verify.Health)
}

func TestVerifyDegradedAfterCopyLoss(t *testing.T) {
	dir := t.TempDir()
	locations := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}

	m, err := NewManager(locations, 2)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, []byte("degrade me")), "")
	require.NoError(t, err)
	require.Equal(t, 2, result.ReplicationAchieved)

	require.NoError(t, os.Remove(result.StoredLocations[0]))

	verify := m.Verify(result.ContentID)
	assert.Equal(t, 1, verify.Available)
	assert.Equal(t, 1, verify.Missing)
	assert.Equal(t, model.HealthDegraded, verify.Health)

	require.NoError(t, os.Remove(result.StoredLocations[1]))

	verify = m.Verify(result.ContentID)
	assert.Equal(t, 0, verify.Available)
	assert.Equal(t, model.HealthFailed, verify.Health)
}

func TestVerifyUnknownContentID(t *testing.T) {
	m, err := NewManager([]string{t.TempDir()}, 2)
	require.NoError(t, err)

	verify := m.Verify("deadbeef")
	assert.Equal(t, 0, verify.Available)
	assert.Equal(t, 2, verify.Missing)
	assert.Equal(t, model.HealthFailed, verify.Health)
}

func TestRetrieveFallsBackAcrossLocations(t *testing.T) {
	dir := t.TempDir()
	locations := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}
	data := []byte("retrieve me")

	m, err := NewManager(locations, 2)
	require.NoError(t, err)

	result, err := m.Store(writeBlob(t, dir, data), "")
	require.NoError(t, err)

	// First replica gone; retrieval must fall through to the second.
	require.NoError(t, os.Remove(result.StoredLocations[0]))

	outputPath := filepath.Join(dir, "out.bin")
	require.True(t, m.Retrieve(result.ContentID, outputPath))

	restored, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, data, restored)

	require.NoError(t, os.Remove(result.StoredLocations[1]))
	assert.False(t, m.Retrieve(result.ContentID, filepath.Join(dir, "out2.bin")))
}

func TestNewManagerRejectsEmptyLocations(t *testing.T) {
	_, err := NewManager(nil, 2)
	assert.ErrorIs(t, err, ErrNoLocations)
}
