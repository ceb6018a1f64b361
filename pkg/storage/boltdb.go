package storage

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/security"
	bolt "go.etcd.io/bbolt"
)

var bucketConfig = []byte("config")

// Value encodings, stored as the first byte of every value
const (
	encodingPlain  byte = 0
	encodingSealed byte = 1
)

// BoltStore implements ConfigStore using BoltDB
type BoltStore struct {
	db     *bolt.DB
	sealer *security.Sealer
}

// BoltOption configures a BoltStore
type BoltOption func(*BoltStore)

// WithSealer encrypts every value written from now on
func WithSealer(s *security.Sealer) BoltOption {
	return func(b *BoltStore) { b.sealer = s }
}

// NewBoltStore opens (or creates) <dataDir>/burrow.db
func NewBoltStore(dataDir string, opts ...BoltOption) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConfig); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketConfig, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetConfig(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfig).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		v, err := s.decode(data)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		value = v
		return nil
	})
	return value, err
}

func (s *BoltStore) SetConfig(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.put(tx, key, value)
	})
}

func (s *BoltStore) MakeConfig(key string, generate Generator) (string, error) {
	var value string
	err := s.db.Update(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketConfig).Get([]byte(key)); data != nil {
			v, err := s.decode(data)
			if err != nil {
				return fmt.Errorf("config %s: %w", key, err)
			}
			value = v
			return nil
		}

		v, err := generate()
		if err != nil {
			return fmt.Errorf("failed to generate %s: %w", key, err)
		}
		value = v
		return s.put(tx, key, v)
	})
	return value, err
}

func (s *BoltStore) put(tx *bolt.Tx, key, value string) error {
	data, err := s.encode(value)
	if err != nil {
		return fmt.Errorf("config %s: %w", key, err)
	}
	return tx.Bucket(bucketConfig).Put([]byte(key), data)
}

func (s *BoltStore) encode(value string) ([]byte, error) {
	if s.sealer == nil {
		return append([]byte{encodingPlain}, value...), nil
	}
	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return nil, err
	}
	return append([]byte{encodingSealed}, sealed...), nil
}

func (s *BoltStore) decode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch data[0] {
	case encodingPlain:
		return string(data[1:]), nil
	case encodingSealed:
		if s.sealer == nil {
			return "", fmt.Errorf("value is encrypted but no passphrase is configured")
		}
		plain, err := s.sealer.Open(data[1:])
		if err != nil {
			return "", err
		}
		return string(plain), nil
	default:
		return "", fmt.Errorf("unknown value encoding %d", data[0])
	}
}
