package state

import (
	"fmt"
	"sync"

	"aurum/storage"
)

// RunAtomic stages every state write issued inside fn and commits the staged
// writes to the backing database in a single batch once fn returns nil. When
// fn fails, nothing is persisted. Atomic blocks are serialized with each
// other; reads inside fn observe the staged writes.
func (m *Manager) RunAtomic(fn func() error) error {
	if m == nil || m.database() == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if fn == nil {
		return fmt.Errorf("atomic function required")
	}
	m.atomicMu.Lock()
	defer m.atomicMu.Unlock()

	staged := newStagedDB(m.database())
	m.swapDB(staged)
	err := fn()
	m.swapDB(staged.base)
	if err != nil {
		return err
	}
	return staged.commit()
}

// stagedDB buffers writes on top of a base database. Reads fall through to
// the base for keys that have not been touched.
type stagedDB struct {
	base storage.Database

	mu      sync.RWMutex
	writes  map[string][]byte
	deleted map[string]bool
}

func newStagedDB(base storage.Database) *stagedDB {
	return &stagedDB{
		base:    base,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (s *stagedDB) Put(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	s.writes[string(key)] = buf
	delete(s.deleted, string(key))
	return nil
}

func (s *stagedDB) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	if s.deleted[string(key)] {
		s.mu.RUnlock()
		return nil, storage.ErrNotFound
	}
	if value, ok := s.writes[string(key)]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()
	return s.base.Get(key)
}

func (s *stagedDB) Has(key []byte) (bool, error) {
	s.mu.RLock()
	if s.deleted[string(key)] {
		s.mu.RUnlock()
		return false, nil
	}
	if _, ok := s.writes[string(key)]; ok {
		s.mu.RUnlock()
		return true, nil
	}
	s.mu.RUnlock()
	return s.base.Has(key)
}

func (s *stagedDB) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writes, string(key))
	s.deleted[string(key)] = true
	return nil
}

func (s *stagedDB) NewBatch() storage.Batch {
	return &stagedBatch{db: s}
}

func (s *stagedDB) Close() {}

// commit flushes the staged writes to the base database as one batch.
func (s *stagedDB) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 && len(s.deleted) == 0 {
		return nil
	}
	batch := s.base.NewBatch()
	for key := range s.deleted {
		batch.Delete([]byte(key))
	}
	for key, value := range s.writes {
		batch.Put([]byte(key), value)
	}
	return batch.Write()
}

type stagedOp struct {
	key    []byte
	value  []byte
	delete bool
}

type stagedBatch struct {
	db  *stagedDB
	ops []stagedOp
}

func (b *stagedBatch) Put(key []byte, value []byte) {
	buf := make([]byte, len(value))
	copy(buf, value)
	b.ops = append(b.ops, stagedOp{key: append([]byte(nil), key...), value: buf})
}

func (b *stagedBatch) Delete(key []byte) {
	b.ops = append(b.ops, stagedOp{key: append([]byte(nil), key...), delete: true})
}

func (b *stagedBatch) Write() error {
	for _, op := range b.ops {
		if op.delete {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}
