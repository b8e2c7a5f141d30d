package catalog

import (
	"context"
	"encoding/json"
	"path/filepath"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/dkovac/depot/core/model"
)

// CatalogStore persists catalog entries keyed by content hash, so
// re-ingesting identical bytes updates the existing entry.
type CatalogStore struct {
	Entries *dslvl.Datastore
}

func NewCatalogStore(dsPath string) (*CatalogStore, error) {
	p := filepath.Join(dsPath, "catalog")
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &CatalogStore{
		Entries: store,
	}, nil
}

func (s *CatalogStore) Put(ctx context.Context, entry model.CatalogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	k := ds.NewKey(entry.SHA256)
	return s.Entries.Put(ctx, k, b)
}

func (s *CatalogStore) Get(ctx context.Context, contentHash string) (*model.CatalogEntry, error) {
	k := ds.NewKey(contentHash)
	b, err := s.Entries.Get(ctx, k)
	if err != nil {
		return nil, err
	}

	var entry model.CatalogEntry
	err = json.Unmarshal(b, &entry)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (s *CatalogStore) All(ctx context.Context) ([]model.CatalogEntry, error) {
	q := dsq.Query{}
	entries := make([]model.CatalogEntry, 0)

	res, err := s.Entries.Query(ctx, q)
	if err != nil {
		return entries, err
	}

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		var entry model.CatalogEntry
		err = json.Unmarshal(r.Value, &entry)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}

	return entries, err
}

func (s *CatalogStore) Close() error {
	return s.Entries.Close()
}
