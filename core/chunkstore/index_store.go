package chunkstore

import (
	"context"
	"encoding/json"
	"path/filepath"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/dkovac/depot/core/model"
)

// IndexStore persists per-file chunk indexes so deduplicated files can
// be reconstructed after a restart.
type IndexStore struct {
	Indexes *dslvl.Datastore
}

func NewIndexStore(dsPath string) (*IndexStore, error) {
	p := filepath.Join(dsPath, "chunk-index")
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &IndexStore{
		Indexes: store,
	}, nil
}

func (s *IndexStore) Put(ctx context.Context, index model.FileChunkIndex) error {
	b, err := json.Marshal(index)
	if err != nil {
		return err
	}

	k := ds.NewKey(index.FileKey)
	return s.Indexes.Put(ctx, k, b)
}

func (s *IndexStore) Get(ctx context.Context, fileKey string) (*model.FileChunkIndex, error) {
	k := ds.NewKey(fileKey)
	b, err := s.Indexes.Get(ctx, k)
	if err != nil {
		return nil, err
	}

	var index model.FileChunkIndex
	err = json.Unmarshal(b, &index)
	if err != nil {
		return nil, err
	}

	return &index, nil
}

func (s *IndexStore) All(ctx context.Context) ([]*model.FileChunkIndex, error) {
	q := dsq.Query{}
	indexes := make([]*model.FileChunkIndex, 0)

	res, err := s.Indexes.Query(ctx, q)
	if err != nil {
		return indexes, err
	}

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		var index model.FileChunkIndex
		err = json.Unmarshal(r.Value, &index)
		if err != nil {
			return indexes, err
		}
		indexes = append(indexes, &index)
	}

	return indexes, err
}

func (s *IndexStore) Close() error {
	return s.Indexes.Close()
}
