package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkw/Singularity/pkg/kvstore"
)

func newTestKV(t *testing.T) kvstore.Store {
	t.Helper()

	store, err := kvstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestKVRequestManager(t *testing.T) {
	kv := newTestKV(t)
	require.NoError(t, kv.CreateWithData("singularity/requests/req1", []byte(`{"id":"req1","loadBalanced":true}`)))
	require.NoError(t, kv.CreateWithData("singularity/requests/req2", []byte(`{"id":"req2","loadBalanced":false}`)))

	requests, err := NewKVRequestManager(kv, "singularity").GetActiveRequests(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Request{
		{ID: "req1", LoadBalanced: true},
		{ID: "req2", LoadBalanced: false},
	}, requests)
}

func TestKVTaskManager(t *testing.T) {
	kv := newTestKV(t)
	require.NoError(t, kv.CreateWithData("singularity/tasks/req1/t1", []byte(`{"id":"t1","host":"worker1","rackId":"rack_1","port":8080}`)))

	tasks, err := NewKVTaskManager(kv, "singularity").GetActiveTasksForRequest(context.Background(), "req1")
	require.NoError(t, err)
	assert.Equal(t, []Task{{ID: "t1", Host: "worker1", RackID: "rack_1", Port: 8080}}, tasks)

	tasks, err = NewKVTaskManager(kv, "singularity").GetActiveTasksForRequest(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestKVDeployManager(t *testing.T) {
	kv := newTestKV(t)
	require.NoError(t, kv.CreateWithData("singularity/deploys/req1/in-use", []byte("d1")))
	require.NoError(t, kv.CreateWithData("singularity/deploys/req1/d1", []byte(`{"id":"d1","loadBalancerUpstreamGroup":"g1"}`)))

	deploys := NewKVDeployManager(kv, "singularity")

	id, ok, err := deploys.GetInUseDeployID(context.Background(), "req1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d1", id)

	deploy, ok, err := deploys.GetDeploy(context.Background(), "req1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Deploy{ID: "d1", LoadBalancerUpstreamGroup: "g1"}, deploy)

	_, ok, err = deploys.GetInUseDeployID(context.Background(), "req2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = deploys.GetDeploy(context.Background(), "req1", "d2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVReadersSanitizeIDs(t *testing.T) {
	kv := newTestKV(t)
	require.NoError(t, kv.CreateWithData("singularity/tasks/my_req/t1", []byte(`{"id":"t1","host":"worker1","rackId":"rack_1","port":8080}`)))
	require.NoError(t, kv.CreateWithData("singularity/deploys/my_req/in-use", []byte("my-deploy")))
	require.NoError(t, kv.CreateWithData("singularity/deploys/my_req/my_deploy", []byte(`{"id":"my-deploy","loadBalancerUpstreamGroup":"g1"}`)))

	tasks, err := NewKVTaskManager(kv, "singularity").GetActiveTasksForRequest(context.Background(), "my-req")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	deploys := NewKVDeployManager(kv, "singularity")

	id, ok, err := deploys.GetInUseDeployID(context.Background(), "my-req")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "my-deploy", id)

	deploy, ok, err := deploys.GetDeploy(context.Background(), "my-req", id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", deploy.LoadBalancerUpstreamGroup)

	// a sanitized deploy id never contains a dash, so it cannot shadow the
	// reserved in-use key
	_, ok, err = deploys.GetDeploy(context.Background(), "my-req", "in_use")
	require.NoError(t, err)
	assert.False(t, ok)
}
