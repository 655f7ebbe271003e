package kvstore

import (
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store on an embedded bbolt database. Path segments map
// to nested buckets with the final segment as the key, so listing a path
// enumerates both value nodes and deeper subtrees. Used for single-node
// deployments and tests; consul backs multi-instance deployments.
type BoltStore struct {
	db *bolt.DB
}

var rootBucket = []byte("kv")

// NewBoltStore opens (or creates) the database under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "singularity.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create root bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// parent walks the bucket chain for every segment but the last, creating
// buckets along the way when create is set. Returns nil when a segment is
// missing and create is unset.
func parent(tx *bolt.Tx, segments []string, create bool) (*bolt.Bucket, error) {
	b := tx.Bucket(rootBucket)
	for _, seg := range segments[:len(segments)-1] {
		if create {
			child, err := b.CreateBucketIfNotExists([]byte(seg))
			if err != nil {
				return nil, err
			}
			b = child
		} else {
			b = b.Bucket([]byte(seg))
			if b == nil {
				return nil, nil
			}
		}
	}
	return b, nil
}

func (s *BoltStore) create(path string, data []byte) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := parent(tx, segments, true)
		if err != nil {
			return err
		}
		key := []byte(segments[len(segments)-1])
		if b.Get(key) != nil || b.Bucket(key) != nil {
			return ErrNodeExists
		}
		return b.Put(key, data)
	})
}

// Create writes an empty marker node
func (s *BoltStore) Create(path string) error {
	return s.create(path, []byte{})
}

// CreateWithData writes a payload-carrying node
func (s *BoltStore) CreateWithData(path string, data []byte) error {
	return s.create(path, data)
}

// Get returns the payload at path, or ErrNotFound
func (s *BoltStore) Get(path string) ([]byte, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, ErrNotFound
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := parent(tx, segments, false)
		if err != nil || b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(segments[len(segments)-1]))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// SetData overwrites the payload of an existing node
func (s *BoltStore) SetData(path string, data []byte) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return ErrNotFound
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := parent(tx, segments, false)
		if err != nil || b == nil {
			return ErrNotFound
		}
		key := []byte(segments[len(segments)-1])
		if b.Get(key) == nil {
			return ErrNotFound
		}
		return b.Put(key, data)
	})
}

// Delete removes the node at path
func (s *BoltStore) Delete(path string) (DeleteResult, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return DidNotExist, nil
	}

	result := DidNotExist
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := parent(tx, segments, false)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		key := []byte(segments[len(segments)-1])
		if b.Get(key) == nil {
			return nil
		}
		result = Deleted
		return b.Delete(key)
	})
	return result, err
}

// ListChildren returns the direct child names under path
func (s *BoltStore) ListChildren(path string) ([]string, error) {
	// sentinel tail makes parent walk the full path
	segments := append(splitPath(path), "")

	var children []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := parent(tx, segments, false)
		if err != nil || b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			children = append(children, string(k))
			return nil
		})
	})
	sort.Strings(children)
	return children, err
}

// NumChildren counts the direct children under path
func (s *BoltStore) NumChildren(path string) (int, error) {
	children, err := s.ListChildren(path)
	return len(children), err
}

// Exists reports whether a node occupies the path
func (s *BoltStore) Exists(path string) (bool, error) {
	_, err := s.Get(path)
	if err == nil {
		return true, nil
	}
	if err == ErrNotFound {
		return false, nil
	}
	return false, err
}
