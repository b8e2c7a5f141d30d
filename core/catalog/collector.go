package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/lib/checksum"
	"github.com/dkovac/depot/lib/logger"
	"github.com/dkovac/depot/lib/utils"
)

var log, _ = logger.New("catalog")

// CategoryOther is the fallback for extensions outside the table.
const CategoryOther = "other"

// categories maps semantic category to the extensions it covers.
var categories = map[string][]string{
	"documents": {".pdf", ".doc", ".docx", ".txt", ".md"},
	"images":    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff"},
	"videos":    {".mp4", ".avi", ".mkv", ".mov", ".wmv"},
	"audio":     {".mp3", ".wav", ".flac", ".ogg", ".m4a"},
	"archives":  {".zip", ".tar", ".gz", ".7z", ".rar"},
	"data":      {".json", ".xml", ".csv", ".xlsx", ".db"},
	"code":      {".py", ".js", ".java", ".cpp", ".c", ".h", ".go"},
}

// Categorize maps a path to its category by extension,
// case-insensitively.
func Categorize(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	for category, extensions := range categories {
		if utils.Contains(extensions, ext) {
			return category
		}
	}

	return CategoryOther
}

// Collector organizes ingested files into category directories under a
// base path and records a catalog entry per unique content hash.
type Collector struct {
	BasePath string

	store *CatalogStore
}

func NewCollector(basePath string, store *CatalogStore) (*Collector, error) {
	for category := range categories {
		if err := os.MkdirAll(filepath.Join(basePath, category), 0750); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Join(basePath, CategoryOther), 0750); err != nil {
		return nil, err
	}

	return &Collector{
		BasePath: basePath,
		store:    store,
	}, nil
}

// ExtractMetadata builds a catalog entry for one file. Created falls
// back to the modification time; Linux exposes no portable birth time
// through os.Stat.
func (c *Collector) ExtractMetadata(path string) (*model.CatalogEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	sum, err := checksum.File(path)
	if err != nil {
		return nil, err
	}

	return &model.CatalogEntry{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Created:  info.ModTime(),
		Modified: info.ModTime(),
		SHA256:   sum,
		Category: Categorize(path),
	}, nil
}

// CollectAndOrganize walks source (a directory or a single file),
// catalogs every regular file and, when autoCategorize is set, copies
// each into its category directory. Name collisions get an incrementing
// numeric suffix instead of overwriting. Per-file failures are counted
// and skipped; the walk always continues.
func (c *Collector) CollectAndOrganize(ctx context.Context, source string, autoCategorize bool) *model.CollectStats {
	stats := &model.CollectStats{
		PerCategory: make(map[string]int),
		Entries:     make([]model.CatalogEntry, 0),
	}

	files, err := listFiles(source)
	if err != nil {
		log.Errorw("collect", "source", source, "err", err)
		stats.Errors++
		return stats
	}

	for _, filePath := range files {
		entry, err := c.ExtractMetadata(filePath)
		if err != nil {
			log.Errorw("collect", "file", filePath, "err", err)
			stats.Errors++
			continue
		}

		if autoCategorize {
			destPath := c.categoryDest(entry.Category, entry.Filename)
			if err := utils.CopyFile(filePath, destPath); err != nil {
				log.Errorw("collect", "file", filePath, "err", err)
				stats.Errors++
				continue
			}
			entry.StoredPath = destPath
		}

		if c.store != nil {
			if err := c.store.Put(ctx, *entry); err != nil {
				log.Errorw("collect", "file", filePath, "error", "failed to persist catalog entry", "err", err)
			}
		}

		stats.Entries = append(stats.Entries, *entry)
		stats.PerCategory[entry.Category]++
		stats.Total++
	}

	return stats
}

// Search filters catalog entries. Empty query and category and
// non-positive size bounds match everything.
func (c *Collector) Search(ctx context.Context, query, category string, minSize, maxSize int64) ([]model.CatalogEntry, error) {
	entries, err := c.store.All(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]model.CatalogEntry, 0)
	for _, entry := range entries {
		if category != "" && entry.Category != category {
			continue
		}
		if minSize > 0 && entry.Size < minSize {
			continue
		}
		if maxSize > 0 && entry.Size > maxSize {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(entry.Filename), strings.ToLower(query)) {
			continue
		}

		results = append(results, entry)
	}

	return results, nil
}

// categoryDest picks a destination path inside the category dir,
// suffixing the name with _1, _2, ... until it is free.
func (c *Collector) categoryDest(category, filename string) string {
	destDir := filepath.Join(c.BasePath, category)
	destPath := filepath.Join(destDir, filename)

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)

	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			return destPath
		}

		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", name, counter, ext))
		counter++
	}
}

func listFiles(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{source}, nil
	}

	files := make([]string, 0)
	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
