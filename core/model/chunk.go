package model

// Chunk is a fixed-size window of file bytes addressed by the SHA-256
// digest of its contents. Equal digests imply byte-identical chunks,
// so a chunk is stored at most once globally.
type Chunk struct {
	Digest string
	Data   []byte
}

// FileChunkIndex is the ordered list of chunk digests for one file.
// Concatenating the chunks in index order reproduces the file.
type FileChunkIndex struct {
	FileKey string
	Digests []string
}

type DedupResult struct {
	FilePath        string
	TotalChunks     int
	NewChunks       int
	DuplicateChunks int
	TotalSize       int64
	SavedSize       int64
	DedupRatio      float64
}

type DedupStats struct {
	TotalChunks int
	TotalFiles  int
	ChunkSize   int
}
