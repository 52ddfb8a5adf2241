package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	id := tr.Start("Querying electricity_outages", map[string]any{"variable": "electricity_outages"})
	steps := tr.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, InProgress, steps[0].Status)
	assert.Equal(t, fixed, steps[0].Timestamp)

	tr.Complete(id, map[string]any{"rows": 2})
	steps = tr.Steps()
	assert.Equal(t, Completed, steps[0].Status)
	assert.Equal(t, "electricity_outages", steps[0].Details["variable"])
	assert.Equal(t, 2, steps[0].Details["rows"])

	tr.Complete("missing", nil)
	assert.Len(t, tr.Steps(), 1)

	tr.Reset()
	assert.Empty(t, tr.Steps())
	tr.Complete(id, nil)
	assert.Empty(t, tr.Steps(), "completing a step from a cleared trace is a no-op")
}

func TestTrackerBroadcast(t *testing.T) {
	tr := NewTracker()
	ch, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	id := tr.Start("Identifying variables", nil)
	tr.Complete(id, nil)
	tr.Reset()

	want := []EventType{EventStep, EventStep, EventReset}
	for i, typ := range want {
		select {
		case ev := <-ch:
			assert.Equal(t, typ, ev.Type, "event %d", i)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("event %d not received", i)
		}
	}
}

func TestTrackerSlowListenerDoesNotBlock(t *testing.T) {
	tr := NewTracker()
	_, unsubscribe := tr.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			tr.Start("step", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full listener")
	}
	unsubscribe()
	unsubscribe()
}

func TestStepMutationIsolation(t *testing.T) {
	tr := NewTracker()
	details := map[string]any{"k": "v"}
	tr.Start("s", details)
	details["k"] = "changed"
	assert.Equal(t, "v", tr.Steps()[0].Details["k"])
}
