package nodedb

import (
	"errors"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelDBStore is the leveldb implementation of the node store
type levelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a leveldb node store at path
func NewLevelDBStore(path string) (Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &levelDBStore{db: db}, nil
}

func (l *levelDBStore) Put(r *Record) error {
	return l.db.Put(nodeKey(r.ID), r.MarshalRLP(), nil)
}

func (l *levelDBStore) Get(id enode.ID) (*Record, error) {
	data, err := l.db.Get(nodeKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	r := &Record{}
	if err := r.UnmarshalRLP(data); err != nil {
		return nil, err
	}

	return r, nil
}

func (l *levelDBStore) Delete(id enode.ID) error {
	return l.db.Delete(nodeKey(id), nil)
}

func (l *levelDBStore) Iterate(fn func(r *Record) bool) error {
	iter := l.db.NewIterator(util.BytesPrefix(nodePrefix), nil)
	defer iter.Release()

	for iter.Next() {
		r := &Record{}
		if err := r.UnmarshalRLP(iter.Value()); err != nil {
			return err
		}

		if !fn(r) {
			break
		}
	}

	return iter.Error()
}

func (l *levelDBStore) Close() error {
	return l.db.Close()
}
