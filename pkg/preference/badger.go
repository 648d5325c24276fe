package preference

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/ajisai-dev/huesync/pkg/errors"
)

const badgerKeyPrefix = "pref:"

// BadgerStore persists preference records in an embedded BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger-backed store at path
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeStorage, "PREF_DB_OPEN_FAILED", "failed to open preference database").WithDetails(path)
	}

	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open badger database
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get implements Store
func (s *BadgerStore) Get(identity string) (Record, error) {
	var rec Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(identity))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, apperrors.Wrap(err, apperrors.ErrorTypeStorage, "PREF_READ_FAILED", "failed to read preference record").WithDetails(identity)
	}

	return rec, nil
}

// Set implements Store
func (s *BadgerStore) Set(identity, key, value string) (Record, error) {
	if key != KeyColor {
		return Record{}, ErrUnsupportedKey
	}

	rec, err := s.Get(identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	rec.Color = value
	rec.LastUpdated = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "PREF_ENCODE_FAILED", "failed to marshal preference record")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(identity), data)
	})
	if err != nil {
		return Record{}, apperrors.Wrap(err, apperrors.ErrorTypeStorage, "PREF_WRITE_FAILED", "failed to write preference record").WithDetails(identity)
	}

	return rec, nil
}

// Close implements Store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerKey(identity string) []byte {
	return []byte(badgerKeyPrefix + identity)
}
