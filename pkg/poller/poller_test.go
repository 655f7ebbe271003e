package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sparkw/Singularity/pkg/log"
)

func TestPollerRunsPassOnInterval(t *testing.T) {
	ran := make(chan struct{}, 1)
	p := New("test", time.Millisecond, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, log.Nop())

	p.Start()
	defer p.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("pass never ran")
	}
}

func TestPollerFirstPassDoesNotWaitForInterval(t *testing.T) {
	ran := make(chan struct{}, 1)
	p := New("test", time.Hour, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, log.Nop())

	p.Start()
	defer p.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass should run at startup, not after the first tick")
	}
}

func TestPollerSurvivesPassFailure(t *testing.T) {
	var passes atomic.Int64
	p := New("test", time.Millisecond, func(context.Context) error {
		passes.Add(1)
		return errors.New("boom")
	}, log.Nop())

	p.Start()
	defer p.Stop()

	assert.Eventually(t, func() bool { return passes.Load() >= 2 },
		5*time.Second, time.Millisecond, "failing pass should keep being retried")
}

func TestPollerStopEndsLoop(t *testing.T) {
	var passes atomic.Int64
	p := New("test", time.Millisecond, func(context.Context) error {
		passes.Add(1)
		return nil
	}, log.Nop())

	p.Start()
	assert.Eventually(t, func() bool { return passes.Load() >= 1 },
		5*time.Second, time.Millisecond)
	p.Stop()

	// give any in-flight tick a moment, then confirm the loop is idle
	time.Sleep(10 * time.Millisecond)
	before := passes.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, passes.Load())
}
