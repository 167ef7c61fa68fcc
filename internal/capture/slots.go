package capture

import (
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

// Session storage keys
const (
	OCRDataKey     = "ocrData"
	SharedImageKey = "sharedImage"
)

const slotsBucketName = "capture_slots"

// Slots is a scoped key-value store backing the session storage channels
type Slots interface {
	// Put stores value under scope/key, replacing any existing value
	Put(scope, key string, value []byte) error

	// Take returns and removes the value under scope/key
	Take(scope, key string) ([]byte, bool, error)

	// Delete removes the given keys under scope
	Delete(scope string, keys ...string) error
}

func slotKey(scope, key string) string {
	return scope + "/" + key
}

// MemorySlots implements Slots in process memory
type MemorySlots struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{values: make(map[string][]byte)}
}

func (m *MemorySlots) Put(scope, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[slotKey(scope, key)] = append([]byte(nil), value...)
	return nil
}

func (m *MemorySlots) Take(scope, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := slotKey(scope, key)
	v, ok := m.values[k]
	delete(m.values, k)
	return v, ok, nil
}

func (m *MemorySlots) Delete(scope string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, slotKey(scope, key))
	}
	return nil
}

// BoltSlots implements Slots in a bbolt bucket so pending captures survive
// a restart.
type BoltSlots struct {
	db *bbolt.DB
}

// NewBoltSlots creates the slots bucket in an open database
func NewBoltSlots(db *bbolt.DB) (*BoltSlots, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(slotsBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating slots bucket: %w", err)
	}
	return &BoltSlots{db: db}, nil
}

func (s *BoltSlots) Put(scope, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(slotsBucketName)).Put([]byte(slotKey(scope, key)), value); err != nil {
			return fmt.Errorf("writing slot %s: %w", slotKey(scope, key), err)
		}
		return nil
	})
}

func (s *BoltSlots) Take(scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(slotsBucketName))
		k := []byte(slotKey(scope, key))
		v := bucket.Get(k)
		if v == nil {
			return nil
		}
		// v is only valid for the life of the transaction
		value = append([]byte{}, v...)
		return bucket.Delete(k)
	})
	if err != nil {
		return nil, false, fmt.Errorf("taking slot %s: %w", slotKey(scope, key), err)
	}
	return value, value != nil, nil
}

func (s *BoltSlots) Delete(scope string, keys ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(slotsBucketName))
		for _, key := range keys {
			if err := bucket.Delete([]byte(slotKey(scope, key))); err != nil {
				return fmt.Errorf("deleting slot %s: %w", slotKey(scope, key), err)
			}
		}
		return nil
	})
}
