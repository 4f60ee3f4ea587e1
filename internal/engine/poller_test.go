package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/types"
)

func TestPollOnceRunsEnabledPollingInstances(t *testing.T) {
	ctx := context.Background()
	eng, poll, hook := newTestEngine(t)
	poll.runItems = []any{"r1"}

	enabled := testInstance("enabled", "poll")
	idle := testInstance("idle", "poll")
	webhook := testInstance("subs", "hook")
	for _, inst := range []*types.InstanceDef{enabled, webhook} {
		_, err := eng.Enable(ctx, inst)
		require.NoError(t, err, inst.Name)
	}

	var delivered []*types.TriggerResult
	p := &Poller{
		Engine:    eng,
		Instances: []*types.InstanceDef{enabled, idle, webhook},
		Interval:  time.Minute,
		OnResult:  func(r *types.TriggerResult) { delivered = append(delivered, r) },
	}

	results := p.PollOnce(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, "enabled", results[0].Instance)
	assert.Len(t, delivered, 1)
	assert.NotContains(t, hook.calls, "run", "webhook trigger must not be polled")
}

func TestPollOnceContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	eng, poll, _ := newTestEngine(t)
	poll.runErr = errors.New("boom")

	a := testInstance("a", "poll")
	b := testInstance("b", "poll")
	for _, inst := range []*types.InstanceDef{a, b} {
		_, err := eng.Enable(ctx, inst)
		require.NoError(t, err, inst.Name)
	}

	p := &Poller{Engine: eng, Instances: []*types.InstanceDef{a, b}, Interval: time.Minute}
	results := p.PollOnce(ctx)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.StatusFailed, r.Status, r.Instance)
	}
}

func TestPollerStartStopsOnCancel(t *testing.T) {
	eng, poll, _ := newTestEngine(t)
	inst := testInstance("a", "poll")
	_, err := eng.Enable(context.Background(), inst)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p := &Poller{Engine: eng, Instances: []*types.InstanceDef{inst}, Interval: 10 * time.Millisecond}
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		poll.mu.Lock()
		defer poll.mu.Unlock()
		return len(poll.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond, "poller never ran")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
