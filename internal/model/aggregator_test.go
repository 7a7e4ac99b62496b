package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTickSingleBucketOHLCV(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(60)

	prices := []float64{10, 12, 9, 11}
	volumes := []float64{1, 2, 3, 4}
	var bar Bar
	for i, p := range prices {
		bar = agg.AddTick(Tick{Timestamp: float64(i * 10), Price: p, Volume: volumes[i]})
	}

	assert.Equal(t, 0.0, bar.Time)
	assert.Equal(t, 10.0, bar.Open, "open should be the first price in the bucket")
	assert.Equal(t, 11.0, bar.Close, "close should be the last price in the bucket")
	assert.Equal(t, 12.0, bar.High)
	assert.Equal(t, 9.0, bar.Low)
	assert.Equal(t, 10.0, bar.Volume)
	assert.Equal(t, 1, agg.Len())
}

func TestAddTickBucketAlignment(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(60)

	assert.Equal(t, 60.0, agg.AddTick(Tick{Timestamp: 90, Price: 1}).Time)
	assert.Equal(t, 120.0, agg.AddTick(Tick{Timestamp: 120, Price: 1}).Time)
	assert.Equal(t, 120.0, agg.AddTick(Tick{Timestamp: 179.999, Price: 1}).Time)
}

func TestAddTickDuplicateTimestampsLastWins(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(10)

	agg.AddTick(Tick{Timestamp: 5, Price: 3})
	agg.AddTick(Tick{Timestamp: 5, Price: 7})
	bar := agg.AddTick(Tick{Timestamp: 5, Price: 4})

	assert.Equal(t, 3.0, bar.Open)
	assert.Equal(t, 4.0, bar.Close)
	assert.Equal(t, 7.0, bar.High)
	assert.Equal(t, 3.0, bar.Low)
	assert.Zero(t, bar.Volume, "missing volume counts as zero")
}

func TestCurrentBar(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(10)

	_, ok := agg.CurrentBar()
	assert.False(t, ok, "fresh aggregator has no current bar")

	agg.AddTick(Tick{Timestamp: 1, Price: 1})
	agg.AddTick(Tick{Timestamp: 11, Price: 2})
	bar, ok := agg.CurrentBar()
	require.True(t, ok)
	assert.Equal(t, 10.0, bar.Time)
}

func TestBarsUntil(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(10)
	for ts := 0.0; ts < 50; ts += 5 {
		agg.AddTick(Tick{Timestamp: ts, Price: ts})
	}

	bars := agg.BarsUntil(25)
	require.Len(t, bars, 3)
	assert.Equal(t, []float64{0, 10, 20}, []float64{bars[0].Time, bars[1].Time, bars[2].Time})

	assert.Len(t, agg.BarsUntil(-1), 0)
	assert.Len(t, agg.Bars(), 5)
}

func TestResetAndSetInterval(t *testing.T) {
	t.Parallel()
	agg := NewTickAggregator(10)
	agg.AddTick(Tick{Timestamp: 1, Price: 1})

	agg.Reset()
	assert.Zero(t, agg.Len())
	_, ok := agg.CurrentBar()
	assert.False(t, ok)

	agg.AddTick(Tick{Timestamp: 1, Price: 1})
	agg.SetInterval(30)
	assert.Equal(t, 30.0, agg.Interval())
	assert.Zero(t, agg.Len(), "changing interval drops old bars")

	assert.Equal(t, 30.0, agg.AddTick(Tick{Timestamp: 45, Price: 1}).Time)
}

func TestNewTickAggregatorDefaultInterval(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultBarInterval, NewTickAggregator(0).Interval())
}
