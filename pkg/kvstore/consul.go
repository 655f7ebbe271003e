package kvstore

import (
	"fmt"
	"sort"
	"strings"

	consul "github.com/hashicorp/consul/api"
)

// ConsulStore implements Store on the consul KV tree. Paths map directly to
// consul keys; Create uses a check-and-set against index 0 so concurrent
// creators observe ErrNodeExists rather than silently overwriting each other.
type ConsulStore struct {
	kv *consul.KV
}

// NewConsulStore connects to the consul agent at addr
func NewConsulStore(addr string) (*ConsulStore, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = addr

	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulStore{kv: client.KV()}, nil
}

// Close is a no-op; the consul client holds no persistent connection state
func (s *ConsulStore) Close() error {
	return nil
}

func (s *ConsulStore) create(path string, data []byte) error {
	key := JoinPath(splitPath(path)...)

	// ModifyIndex 0 means "only if absent"
	ok, _, err := s.kv.CAS(&consul.KVPair{Key: key, Value: data, ModifyIndex: 0}, nil)
	if err != nil {
		return fmt.Errorf("consul cas %s: %w", key, err)
	}
	if !ok {
		return ErrNodeExists
	}
	return nil
}

// Create writes an empty marker node
func (s *ConsulStore) Create(path string) error {
	return s.create(path, []byte{})
}

// CreateWithData writes a payload-carrying node
func (s *ConsulStore) CreateWithData(path string, data []byte) error {
	return s.create(path, data)
}

// Get returns the payload at path, or ErrNotFound
func (s *ConsulStore) Get(path string) ([]byte, error) {
	key := JoinPath(splitPath(path)...)

	pair, _, err := s.kv.Get(key, nil)
	if err != nil {
		return nil, fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return nil, ErrNotFound
	}
	return pair.Value, nil
}

// SetData overwrites the payload of an existing node
func (s *ConsulStore) SetData(path string, data []byte) error {
	key := JoinPath(splitPath(path)...)

	pair, _, err := s.kv.Get(key, nil)
	if err != nil {
		return fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return ErrNotFound
	}

	_, err = s.kv.Put(&consul.KVPair{Key: key, Value: data}, nil)
	if err != nil {
		return fmt.Errorf("consul put %s: %w", key, err)
	}
	return nil
}

// Delete removes the node at path
func (s *ConsulStore) Delete(path string) (DeleteResult, error) {
	key := JoinPath(splitPath(path)...)

	pair, _, err := s.kv.Get(key, nil)
	if err != nil {
		return DidNotExist, fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return DidNotExist, nil
	}

	if _, err := s.kv.Delete(key, nil); err != nil {
		return DidNotExist, fmt.Errorf("consul delete %s: %w", key, err)
	}
	return Deleted, nil
}

// ListChildren returns the direct child names under path
func (s *ConsulStore) ListChildren(path string) ([]string, error) {
	prefix := JoinPath(splitPath(path)...) + "/"

	keys, _, err := s.kv.Keys(prefix, "/", nil)
	if err != nil {
		return nil, fmt.Errorf("consul keys %s: %w", prefix, err)
	}

	children := make([]string, 0, len(keys))
	for _, k := range keys {
		child := strings.TrimSuffix(strings.TrimPrefix(k, prefix), "/")
		if child != "" {
			children = append(children, child)
		}
	}
	sort.Strings(children)
	return children, nil
}

// NumChildren counts the direct children under path
func (s *ConsulStore) NumChildren(path string) (int, error) {
	children, err := s.ListChildren(path)
	return len(children), err
}

// Exists reports whether a node occupies the path
func (s *ConsulStore) Exists(path string) (bool, error) {
	_, err := s.Get(path)
	if err == nil {
		return true, nil
	}
	if err == ErrNotFound {
		return false, nil
	}
	return false, err
}
