package nodedb

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xPolygon/edge-p2p/network/enode"
	bolt "go.etcd.io/bbolt"
)

/*
Bolt DB schema:

nodes/
|--> keccak256(node id) -> *Record (rlp encoded)
*/

var nodesBucket = []byte("nodes")

var errStopIteration = errors.New("stop iteration")

type boltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bolt node store at path
func NewBoltStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(nodesBucket); err != nil {
			return fmt.Errorf("failed to create bucket=%s: %w", string(nodesBucket), err)
		}

		return nil
	}); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Put(r *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).Put(nodeKey(r.ID), r.MarshalRLP())
	})
}

func (s *boltStore) Get(id enode.ID) (*Record, error) {
	var r *Record

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(nodesBucket).Get(nodeKey(id))
		if v == nil {
			return ErrNotFound
		}

		r = &Record{}

		return r.UnmarshalRLP(v)
	})

	return r, err
}

func (s *boltStore) Delete(id enode.ID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).Delete(nodeKey(id))
	})
}

func (s *boltStore) Iterate(fn func(r *Record) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(_, v []byte) error {
			r := &Record{}
			if err := r.UnmarshalRLP(v); err != nil {
				return err
			}

			if !fn(r) {
				return errStopIteration
			}

			return nil
		})
	})

	if errors.Is(err, errStopIteration) {
		return nil
	}

	return err
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
