// Package metrics 把回放引擎的活动导出为 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tick-replay/internal/replay"
)

const namespace = "tick_replay"

// Subscriber 事件订阅面
type Subscriber interface {
	On(t replay.EventType, h replay.Handler) replay.Subscription
}

// Collector 回放指标
type Collector struct {
	TicksProcessed prometheus.Counter
	TickVolume     prometheus.Counter
	BarsClosed     prometheus.Counter
	Resets         prometheus.Counter
	Ended          prometheus.Counter
	StateChanges   *prometheus.CounterVec
	CurrentTime    prometheus.Gauge
	Speed          prometheus.Gauge
	Playing        prometheus.Gauge
	LastPrice      prometheus.Gauge
}

// NewCollector 创建并注册到给定的 Registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_processed_total",
			Help:      "Ticks consumed by the replay engine.",
		}),
		TickVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_volume_total",
			Help:      "Sum of volume over processed ticks.",
		}),
		BarsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_closed_total",
			Help:      "Bars closed during playback.",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Bar rebuilds caused by load, stop, seek or interval changes.",
		}),
		Ended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ended_total",
			Help:      "Times playback reached the end of the session.",
		}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "State change events by resulting status.",
		}, []string{"status"}),
		CurrentTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_time_seconds",
			Help:      "Virtual clock position (unix seconds).",
		}),
		Speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speed",
			Help:      "Current playback speed multiplier.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playing",
			Help:      "1 while the engine is playing.",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Price of the most recently processed tick.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.TicksProcessed, c.TickVolume, c.BarsClosed, c.Resets, c.Ended,
			c.StateChanges, c.CurrentTime, c.Speed, c.Playing, c.LastPrice,
		)
	}
	return c
}

// Attach 订阅引擎事件
func (c *Collector) Attach(bus Subscriber) {
	bus.On(replay.EventTick, func(ev replay.Event) {
		c.TicksProcessed.Inc()
		if ev.Tick.Volume > 0 {
			c.TickVolume.Add(ev.Tick.Volume)
		}
		c.LastPrice.Set(ev.Tick.Price)
	})
	bus.On(replay.EventBar, func(replay.Event) { c.BarsClosed.Inc() })
	bus.On(replay.EventReset, func(replay.Event) { c.Resets.Inc() })
	bus.On(replay.EventEnded, func(replay.Event) { c.Ended.Inc() })
	bus.On(replay.EventStateChange, func(ev replay.Event) {
		c.StateChanges.WithLabelValues(ev.State.Status.String()).Inc()
		c.CurrentTime.Set(ev.State.CurrentTime)
		c.Speed.Set(ev.State.Speed)
		if ev.State.Status == replay.StatusPlaying {
			c.Playing.Set(1)
		} else {
			c.Playing.Set(0)
		}
	})
}
