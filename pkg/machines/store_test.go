package machines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkw/Singularity/pkg/kvstore"
	"github.com/sparkw/Singularity/pkg/log"
)

func newNodeStore(t *testing.T) *Store[Node] {
	t.Helper()

	kv, err := kvstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	return NewNodeStore(kv, "singularity/slaves", log.Nop())
}

func newRackStore(t *testing.T) *Store[Rack] {
	t.Helper()

	kv, err := kvstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	return NewRackStore(kv, "singularity/racks", log.Nop())
}

// assertSingleBucket asserts the cross-bucket invariant: an id is a member of
// at most one of active, decommissioning, dead.
func assertSingleBucket[T Machine[T]](t *testing.T, s *Store[T], id string) {
	t.Helper()

	active, err := s.IsActive(id)
	require.NoError(t, err)
	decommissioning, err := s.IsDecommissioning(id)
	require.NoError(t, err)
	dead, err := s.IsDead(id)
	require.NoError(t, err)

	members := 0
	for _, m := range []bool{active, decommissioning, dead} {
		if m {
			members++
		}
	}
	assert.LessOrEqual(t, members, 1, "id %s present in %d buckets", id, members)
}

func TestSaveRoundTrip(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))

	got, ok, err := store.ActiveObject("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node, got)

	objects, err := store.ActiveObjects()
	require.NoError(t, err)
	assert.Equal(t, []Node{node}, objects)
}

func TestSaveIsIdempotent(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.Save(node))

	num, err := store.NumActive()
	require.NoError(t, err)
	assert.Equal(t, 1, num)

	got, ok, err := store.ActiveObject("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node, got)
}

func TestActiveObjectMissingIsNotAnError(t *testing.T) {
	store := newNodeStore(t)

	_, ok, err := store.ActiveObject("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecommission(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.Decommission("n1"))

	assertSingleBucket(t, store, "n1")

	active, err := store.IsActive("n1")
	require.NoError(t, err)
	assert.False(t, active)

	got, ok, err := store.DecommissioningObject("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateDecommissioning, got.State)
	assert.Equal(t, "host1", got.Host)
}

func TestDecommissionAbsentFailsFast(t *testing.T) {
	store := newNodeStore(t)

	err := store.Decommission("missing")
	assert.ErrorIs(t, err, ErrNotActive)

	// store unchanged
	for _, count := range []func() (int, error){store.NumActive, store.NumDecommissioning, store.NumDead} {
		num, err := count()
		require.NoError(t, err)
		assert.Zero(t, num)
	}
}

func TestMarkAsDecommissioned(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.Decommission("n1"))

	obj, ok, err := store.DecommissioningObject("n1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.MarkAsDecommissioned(obj))

	got, ok, err := store.DecommissioningObject("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateDecommissioned, got.State)
	assertSingleBucket(t, store, "n1")
}

func TestMarkAsDecommissionedWithoutRecordIsTolerated(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	assert.NoError(t, store.MarkAsDecommissioned(node))
}

func TestMarkAsDead(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.MarkAsDead("n1"))

	assertSingleBucket(t, store, "n1")

	dead, err := store.IsDead("n1")
	require.NoError(t, err)
	assert.True(t, dead)

	active, err := store.IsActive("n1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRemoveDeadDistinguishesAbsent(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.MarkAsDead("n1"))

	result, err := store.RemoveDead("n1")
	require.NoError(t, err)
	assert.Equal(t, kvstore.Deleted, result)

	result, err = store.RemoveDead("n1")
	require.NoError(t, err)
	assert.Equal(t, kvstore.DidNotExist, result)
}

func TestRemoveDecommissioningDistinguishesAbsent(t *testing.T) {
	store := newNodeStore(t)

	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}
	require.NoError(t, store.Save(node))
	require.NoError(t, store.Decommission("n1"))

	result, err := store.RemoveDecommissioning("n1")
	require.NoError(t, err)
	assert.Equal(t, kvstore.Deleted, result)

	result, err = store.RemoveDecommissioning("n1")
	require.NoError(t, err)
	assert.Equal(t, kvstore.DidNotExist, result)
}

func TestClearActive(t *testing.T) {
	store := newNodeStore(t)

	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, store.Save(Node{ID: id, Host: id, RackID: "rack_1", State: StateActive}))
	}
	require.NoError(t, store.Save(Node{ID: "n4", Host: "n4", RackID: "rack_1", State: StateActive}))
	require.NoError(t, store.MarkAsDead("n4"))

	cleared, err := store.ClearActive()
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)

	num, err := store.NumActive()
	require.NoError(t, err)
	assert.Zero(t, num)

	// other buckets untouched
	dead, err := store.IsDead("n4")
	require.NoError(t, err)
	assert.True(t, dead)
}

func TestLifecycleSequenceKeepsSingleBucketMembership(t *testing.T) {
	store := newNodeStore(t)
	node := Node{ID: "n1", Host: "host1", RackID: "rack_1", State: StateActive}

	require.NoError(t, store.Save(node))
	assertSingleBucket(t, store, "n1")

	require.NoError(t, store.Decommission("n1"))
	assertSingleBucket(t, store, "n1")

	_, err := store.RemoveDecommissioning("n1")
	require.NoError(t, err)
	assertSingleBucket(t, store, "n1")

	require.NoError(t, store.Save(node))
	require.NoError(t, store.MarkAsDead("n1"))
	assertSingleBucket(t, store, "n1")

	_, err = store.RemoveDead("n1")
	require.NoError(t, err)
	assertSingleBucket(t, store, "n1")
}

func TestRackMarkerLifecycle(t *testing.T) {
	store := newRackStore(t)

	require.NoError(t, store.AddToActive("rack_1"))
	require.NoError(t, store.AddToActive("rack_1")) // idempotent

	active, err := store.IsActive("rack_1")
	require.NoError(t, err)
	assert.True(t, active)

	// marker entries deserialize as active racks
	racks, err := store.ActiveObjects()
	require.NoError(t, err)
	assert.Equal(t, []Rack{{ID: "rack_1", State: StateActive}}, racks)

	require.NoError(t, store.Decommission("rack_1"))
	assertSingleBucket(t, store, "rack_1")

	got, ok, err := store.DecommissioningObject("rack_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateDecommissioning, got.State)
}
