package machines

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sparkw/Singularity/pkg/kvstore"
)

// ErrNotActive is returned when an operation requires an active record that
// does not exist (for example decommissioning an unknown machine).
var ErrNotActive = errors.New("machines: no active record")

const (
	activePath          = "active"
	decommissioningPath = "decommissioning"
	deadPath            = "dead"
)

// Store tracks the lifecycle of one machine kind in three disjoint buckets
// under root: active, decommissioning, dead. An id is a member of at most one
// bucket at any time; bucket moves write the destination before deleting the
// source so a crash never loses the record.
//
// NotFound from the backing store is absent data, not a fault. Every other
// backing-store error propagates to the caller unretried.
type Store[T Machine[T]] struct {
	store  kvstore.Store
	root   string
	decode func(id string, data []byte) (T, error)
	logger zerolog.Logger
}

// NewNodeStore builds the lifecycle store for worker nodes
func NewNodeStore(store kvstore.Store, root string, logger zerolog.Logger) *Store[Node] {
	return &Store[Node]{
		store:  store,
		root:   root,
		decode: decodeNode,
		logger: logger.With().Str("component", "node-store").Logger(),
	}
}

// NewRackStore builds the lifecycle store for racks
func NewRackStore(store kvstore.Store, root string, logger zerolog.Logger) *Store[Rack] {
	return &Store[Rack]{
		store:  store,
		root:   root,
		decode: decodeRack,
		logger: logger.With().Str("component", "rack-store").Logger(),
	}
}

func (s *Store[T]) activeRoot() string { return kvstore.JoinPath(s.root, activePath) }
func (s *Store[T]) deadRoot() string   { return kvstore.JoinPath(s.root, deadPath) }
func (s *Store[T]) decommissioningRoot() string {
	return kvstore.JoinPath(s.root, decommissioningPath)
}

func (s *Store[T]) activePathFor(id string) string {
	return kvstore.JoinPath(s.activeRoot(), id)
}

func (s *Store[T]) deadPathFor(id string) string {
	return kvstore.JoinPath(s.deadRoot(), id)
}

func (s *Store[T]) decommissioningPathFor(id string) string {
	return kvstore.JoinPath(s.decommissioningRoot(), id)
}

// getObjects lists a bucket and reads each entry. Entries that vanish between
// the listing and the read are logged and skipped.
func (s *Store[T]) getObjects(root string) ([]T, error) {
	children, err := s.store.ListChildren(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	objects := make([]T, 0, len(children))
	for _, child := range children {
		path := kvstore.JoinPath(root, child)
		data, err := s.store.Get(path)
		if errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn().Str("path", path).Msg("object vanished during listing")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		obj, err := s.decode(child, data)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (s *Store[T]) getObject(root, id string) (T, bool, error) {
	var zero T

	data, err := s.store.Get(kvstore.JoinPath(root, id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read %s/%s: %w", root, id, err)
	}

	obj, err := s.decode(id, data)
	if err != nil {
		return zero, false, err
	}
	return obj, true, nil
}

// ActiveObjects returns the fully deserialized active entries
func (s *Store[T]) ActiveObjects() ([]T, error) {
	return s.getObjects(s.activeRoot())
}

// DeadObjects returns the fully deserialized dead entries
func (s *Store[T]) DeadObjects() ([]T, error) {
	return s.getObjects(s.deadRoot())
}

// DecommissioningObjects returns the fully deserialized decommissioning entries
func (s *Store[T]) DecommissioningObjects() ([]T, error) {
	return s.getObjects(s.decommissioningRoot())
}

// ActiveObject reads one active entry; absence is not an error
func (s *Store[T]) ActiveObject(id string) (T, bool, error) {
	return s.getObject(s.activeRoot(), id)
}

// DecommissioningObject reads one decommissioning entry; absence is not an error
func (s *Store[T]) DecommissioningObject(id string) (T, bool, error) {
	return s.getObject(s.decommissioningRoot(), id)
}

// Active returns the active ids
func (s *Store[T]) Active() ([]string, error) {
	return s.store.ListChildren(s.activeRoot())
}

// Decommissioning returns the decommissioning ids
func (s *Store[T]) Decommissioning() ([]string, error) {
	return s.store.ListChildren(s.decommissioningRoot())
}

// Dead returns the dead ids
func (s *Store[T]) Dead() ([]string, error) {
	return s.store.ListChildren(s.deadRoot())
}

// NumActive counts the active entries
func (s *Store[T]) NumActive() (int, error) {
	return s.store.NumChildren(s.activeRoot())
}

// NumDecommissioning counts the decommissioning entries
func (s *Store[T]) NumDecommissioning() (int, error) {
	return s.store.NumChildren(s.decommissioningRoot())
}

// NumDead counts the dead entries
func (s *Store[T]) NumDead() (int, error) {
	return s.store.NumChildren(s.deadRoot())
}

// IsActive reports membership in the active bucket
func (s *Store[T]) IsActive(id string) (bool, error) {
	return s.store.Exists(s.activePathFor(id))
}

// IsDead reports membership in the dead bucket
func (s *Store[T]) IsDead(id string) (bool, error) {
	return s.store.Exists(s.deadPathFor(id))
}

// IsDecommissioning reports membership in the decommissioning bucket
func (s *Store[T]) IsDecommissioning(id string) (bool, error) {
	return s.store.Exists(s.decommissioningPathFor(id))
}

// Save creates the machine in the active bucket. A create race is logged and
// treated as success: the competing writer stored equivalent content, since
// payloads are derived deterministically from current topology.
func (s *Store[T]) Save(obj T) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", obj.GetID(), err)
	}

	path := s.activePathFor(obj.GetID())
	err = s.store.CreateWithData(path, data)
	if errors.Is(err, kvstore.ErrNodeExists) {
		s.logger.Warn().Str("path", path).Msg("node already existed on save")
		return nil
	}
	return err
}

// AddToActive creates a payload-free active marker (used for racks)
func (s *Store[T]) AddToActive(id string) error {
	err := s.store.Create(s.activePathFor(id))
	if errors.Is(err, kvstore.ErrNodeExists) {
		s.logger.Warn().Str("id", id).Msg("node already existed on add to active")
		return nil
	}
	return err
}

// Decommission moves the machine from active to decommissioning. The
// decommissioning record is written before the active record is deleted so a
// crash in between leaves the machine recoverable, never lost. Fails with
// ErrNotActive when no active record exists.
func (s *Store[T]) Decommission(id string) error {
	obj, ok, err := s.ActiveObject(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w for %s", ErrNotActive, id)
	}

	obj = obj.WithState(StateDecommissioning)
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	if err := s.store.CreateWithData(s.decommissioningPathFor(id), data); err != nil {
		return err
	}

	_, err = s.store.Delete(s.activePathFor(id))
	return err
}

// MarkAsDecommissioned terminally updates a decommissioning machine in place
func (s *Store[T]) MarkAsDecommissioned(obj T) error {
	obj = obj.WithState(StateDecommissioned)
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", obj.GetID(), err)
	}

	path := s.decommissioningPathFor(obj.GetID())
	err = s.store.SetData(path, data)
	if errors.Is(err, kvstore.ErrNotFound) {
		s.logger.Warn().Str("path", path).Msg("no decommissioning record to mark decommissioned")
		return nil
	}
	return err
}

// MarkAsDead moves the machine from active to a payload-free dead marker
func (s *Store[T]) MarkAsDead(id string) error {
	if _, err := s.store.Delete(s.activePathFor(id)); err != nil {
		return err
	}

	err := s.store.Create(s.deadPathFor(id))
	if errors.Is(err, kvstore.ErrNodeExists) {
		s.logger.Warn().Str("id", id).Msg("dead marker already existed")
		return nil
	}
	return err
}

// RemoveDecommissioning deletes the decommissioning record, reporting whether
// one existed
func (s *Store[T]) RemoveDecommissioning(id string) (kvstore.DeleteResult, error) {
	return s.store.Delete(s.decommissioningPathFor(id))
}

// RemoveDead deletes the dead marker, reporting whether one existed
func (s *Store[T]) RemoveDead(id string) (kvstore.DeleteResult, error) {
	return s.store.Delete(s.deadPathFor(id))
}

// ClearActive deletes every active entry, returning the count removed. This
// is the first step of a full-roster resync and must be followed immediately
// by a rebuild; it is never used for incremental updates.
func (s *Store[T]) ClearActive() (int, error) {
	active, err := s.Active()
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, id := range active {
		if _, err := s.store.Delete(s.activePathFor(id)); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}
