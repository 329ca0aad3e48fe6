package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore layers RLP encoding and list semantics over a raw Database. Engines
// persist their records through this interface rather than touching the raw
// byte store.
type KVStore struct {
	db Database
}

// NewKVStore wraps the provided database.
func NewKVStore(db Database) *KVStore {
	return &KVStore{db: db}
}

// KVGet decodes the stored value into out, reporting whether the key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("kv store not initialised")
	}
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes the value with RLP and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kv store not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVAppend appends a raw entry to the list stored under key.
func (s *KVStore) KVAppend(key []byte, value []byte) error {
	var entries [][]byte
	if err := s.KVGetList(key, &entries); err != nil {
		return err
	}
	entries = append(entries, value)
	return s.KVPut(key, entries)
}

// KVGetList decodes the list stored under key into out. A missing key yields
// an empty list.
func (s *KVStore) KVGetList(key []byte, out interface{}) error {
	ok, err := s.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		if target, isList := out.(*[][]byte); isList {
			*target = (*target)[:0]
		}
	}
	return nil
}
