package model

import "time"

// CatalogEntry describes one ingested file, keyed by content hash so
// re-ingesting identical bytes updates rather than duplicates it.
type CatalogEntry struct {
	Filename   string
	Size       int64
	Created    time.Time
	Modified   time.Time
	SHA256     string
	Category   string
	StoredPath string
}

// CollectStats summarizes one collect-and-organize run. Entries holds
// the catalog entries produced by this run, in walk order.
type CollectStats struct {
	PerCategory map[string]int
	Total       int
	Errors      int
	Entries     []CatalogEntry
}
