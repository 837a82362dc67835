package nodedb

import (
	"sync"

	"github.com/0xPolygon/edge-p2p/network/enode"
)

// memoryStore keeps encoded records in a map. Used when no data dir is set.
type memoryStore struct {
	lock    sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{records: map[string][]byte{}}
}

func (m *memoryStore) Put(r *Record) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.records[string(nodeKey(r.ID))] = r.MarshalRLP()

	return nil
}

func (m *memoryStore) Get(id enode.ID) (*Record, error) {
	m.lock.RLock()
	data, ok := m.records[string(nodeKey(id))]
	m.lock.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	r := &Record{}
	if err := r.UnmarshalRLP(data); err != nil {
		return nil, err
	}

	return r, nil
}

func (m *memoryStore) Delete(id enode.ID) error {
	m.lock.Lock()
	delete(m.records, string(nodeKey(id)))
	m.lock.Unlock()

	return nil
}

func (m *memoryStore) Iterate(fn func(r *Record) bool) error {
	m.lock.RLock()
	values := make([][]byte, 0, len(m.records))

	for _, v := range m.records {
		values = append(values, v)
	}
	m.lock.RUnlock()

	for _, v := range values {
		r := &Record{}
		if err := r.UnmarshalRLP(v); err != nil {
			return err
		}

		if !fn(r) {
			return nil
		}
	}

	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
