package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-replay/internal/model"
	"tick-replay/internal/replay"
)

func TestCollectorFollowsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	bus := replay.NewEmitter(nil)
	c.Attach(bus)

	bus.Emit(replay.Event{Type: replay.EventTick, Tick: model.Tick{Price: 101.5, Volume: 2}})
	bus.Emit(replay.Event{Type: replay.EventTick, Tick: model.Tick{Price: 102}})
	bus.Emit(replay.Event{Type: replay.EventBar})
	bus.Emit(replay.Event{Type: replay.EventReset})
	bus.Emit(replay.Event{Type: replay.EventStateChange, State: replay.State{Status: replay.StatusPlaying, CurrentTime: 1700000000, Speed: 5}})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.TicksProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TickVolume))
	assert.Equal(t, 102.0, testutil.ToFloat64(c.LastPrice))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BarsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Resets))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Playing))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.Speed))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.CurrentTime))

	bus.Emit(replay.Event{Type: replay.EventStateChange, State: replay.State{Status: replay.StatusEnded, Speed: 5}})
	bus.Emit(replay.Event{Type: replay.EventEnded})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Playing))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Ended))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StateChanges.WithLabelValues("ended")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollectorWithoutRegistry(t *testing.T) {
	c := NewCollector(nil)
	c.TicksProcessed.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TicksProcessed))
}
