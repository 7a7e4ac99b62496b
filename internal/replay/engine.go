// Package replay 在录制的 Tick 流上驱动虚拟时钟, 聚合 K 线并发出事件, 提供播放/暂停/跳转等控制
package replay

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tick-replay/internal/model"
)

// DefaultSpeeds 默认允许的播放倍速
var DefaultSpeeds = []float64{0.25, 0.5, 1, 2, 5, 10, 25, 50, 100}

const DefaultTimerInterval = 100 * time.Millisecond

// Config 回放引擎配置, 零值字段使用默认值
type Config struct {
	BarInterval     float64       // K 线周期 (秒)
	TimerInterval   time.Duration // 定时器真实时间间隔
	Speed           float64       // 初始倍速
	AvailableSpeeds []float64
	Logger          *zap.Logger
	Scheduler       Scheduler
	Now             func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BarInterval:     model.DefaultBarInterval,
		TimerInterval:   DefaultTimerInterval,
		Speed:           1,
		AvailableSpeeds: append([]float64(nil), DefaultSpeeds...),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if !(c.BarInterval > 0) {
		c.BarInterval = def.BarInterval
	}
	if c.TimerInterval <= 0 {
		c.TimerInterval = def.TimerInterval
	}
	if !(c.Speed > 0) {
		c.Speed = def.Speed
	}
	if len(c.AvailableSpeeds) == 0 {
		c.AvailableSpeeds = def.AvailableSpeeds
	}
	c.AvailableSpeeds = append([]float64(nil), c.AvailableSpeeds...)
	sort.Float64s(c.AvailableSpeeds)
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Scheduler == nil {
		c.Scheduler = TickerScheduler{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine 回放引擎. 由调用方创建并负责 Dispose, 不做进程级单例.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger
	events *Emitter

	ticks  []model.Tick
	cursor int // 下一个待处理 Tick 的下标
	agg    *model.TickAggregator
	state  State

	cancelTimer func()
	timerGen    uint64
	lastFire    time.Time

	queue      []Event
	delivering bool
	disposed   bool
}

// NewEngine 创建回放引擎
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger.Named("replay"),
		events: NewEmitter(cfg.Logger.Named("replay.events")),
		agg:    model.NewTickAggregator(cfg.BarInterval),
	}
	e.state = State{Status: StatusIdle, Speed: e.snapSpeed(cfg.Speed)}
	return e
}

// On 订阅事件
func (e *Engine) On(t EventType, h Handler) Subscription {
	return e.events.On(t, h)
}

// Off 取消订阅
func (e *Engine) Off(sub Subscription) bool {
	return e.events.Off(sub)
}

// Load 载入新的 Tick 序列 (稳定排序), 重置游标与 K 线, 状态回到 idle
func (e *Engine) Load(ticks []model.Tick) {
	e.do("Load", func() {
		e.stopTimer()

		e.ticks = append(make([]model.Tick, 0, len(ticks)), ticks...)
		sort.SliceStable(e.ticks, func(i, j int) bool {
			return e.ticks[i].Timestamp < e.ticks[j].Timestamp
		})
		e.cursor = 0
		e.agg = model.NewTickAggregator(e.cfg.BarInterval)

		var start, end float64
		if n := len(e.ticks); n > 0 {
			start, end = e.ticks[0].Timestamp, e.ticks[n-1].Timestamp
		}
		e.setState(State{
			Status:      StatusIdle,
			CurrentTime: start,
			Speed:       e.state.Speed,
			StartTime:   start,
			EndTime:     end,
		})
		e.enqueue(Event{Type: EventReset})

		e.logger.Info("Replay session loaded",
			zap.Int("ticks", len(e.ticks)),
			zap.Float64("start", start),
			zap.Float64("end", end),
			zap.Float64("barInterval", e.agg.Interval()))
	})
}

// Play 开始或继续播放; 已结束时从头开始
func (e *Engine) Play() {
	e.do("Play", func() {
		if e.state.Status == StatusPlaying || len(e.ticks) == 0 {
			return
		}
		next := e.state
		if e.state.Status == StatusEnded {
			// 从头播放: 与 Stop 一样清空游标, 保证首个 Tick 也会发出 tick 事件
			e.cursor = 0
			e.agg.Reset()
			next.CurrentTime = next.StartTime
			e.enqueue(Event{Type: EventReset})
		}
		next.Status = StatusPlaying
		e.setState(next)
		e.startTimer()
	})
}

// Pause 暂停播放, 保留当前时间与已聚合的 K 线
func (e *Engine) Pause() {
	e.do("Pause", func() {
		if e.state.Status != StatusPlaying {
			return
		}
		e.stopTimer()
		next := e.state
		next.Status = StatusPaused
		e.setState(next)
	})
}

// Stop 停止播放并回到起点, 清空 K 线
func (e *Engine) Stop() {
	e.do("Stop", func() {
		e.stopTimer()
		e.cursor = 0
		e.agg.Reset()
		next := e.state
		next.Status = StatusIdle
		next.CurrentTime = next.StartTime
		e.setState(next)
		e.enqueue(Event{Type: EventReset})
	})
}

// SeekTo 跳转到指定时间 (钳制到 [StartTime, EndTime]), 从头重建 K 线
func (e *Engine) SeekTo(timestamp float64) {
	e.do("SeekTo", func() { e.seek(timestamp) })
}

// SeekToPercent 按百分比跳转, p 被钳制到 [0, 100]
func (e *Engine) SeekToPercent(p float64) {
	e.do("SeekToPercent", func() {
		if math.IsNaN(p) {
			return
		}
		p = math.Max(0, math.Min(100, p))
		e.seek(e.state.StartTime + p/100*(e.state.EndTime-e.state.StartTime))
	})
}

// StepForward 向前跳 n 根 K 线的时间
func (e *Engine) StepForward(n int) {
	e.do("StepForward", func() {
		e.seek(e.state.CurrentTime + float64(n)*e.agg.Interval())
	})
}

// StepBackward 向后跳 n 根 K 线的时间
func (e *Engine) StepBackward(n int) {
	e.do("StepBackward", func() {
		e.seek(e.state.CurrentTime - float64(n)*e.agg.Interval())
	})
}

// SetSpeed 设置倍速, 不在允许列表中的值取最接近的允许值
func (e *Engine) SetSpeed(speed float64) {
	e.do("SetSpeed", func() {
		snapped := e.snapSpeed(speed)
		if snapped == e.state.Speed {
			return
		}
		next := e.state
		next.Speed = snapped
		e.setState(next)
		if e.state.Status == StatusPlaying {
			e.startTimer()
		}
	})
}

// SetBarInterval 修改 K 线周期, 并按当前游标重建 K 线
func (e *Engine) SetBarInterval(seconds float64) {
	e.do("SetBarInterval", func() {
		if !(seconds > 0) || seconds == e.agg.Interval() {
			return
		}
		e.cfg.BarInterval = seconds
		e.agg.SetInterval(seconds)
		e.rebuild(e.cursor)
		e.enqueue(Event{Type: EventReset})
	})
}

// Dispose 释放引擎: 停止定时器, 移除订阅者, 丢弃 Tick. 之后再调用操作会 panic.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.stopTimer()
	e.events.Clear()
	e.ticks = nil
	e.queue = nil
	e.agg.Reset()
	e.disposed = true
}

// State 返回当前状态快照
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Bars 返回当前已聚合的全部 K 线
func (e *Engine) Bars() []model.Bar {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Bars()
}

// BarsUntil 返回起始时间不晚于 timestamp 所在桶的 K 线
func (e *Engine) BarsUntil(timestamp float64) []model.Bar {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.BarsUntil(timestamp)
}

// CurrentBar 返回最近一次被更新的 K 线
func (e *Engine) CurrentBar() (model.Bar, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.CurrentBar()
}

// BarInterval 当前 K 线周期 (秒)
func (e *Engine) BarInterval() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Interval()
}

// Progress 返回播放进度百分比
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	span := e.state.EndTime - e.state.StartTime
	if span <= 0 {
		if e.state.Status == StatusEnded {
			return 100
		}
		return 0
	}
	return (e.state.CurrentTime - e.state.StartTime) / span * 100
}

// TickCount 返回载入的 Tick 总数与已处理数
func (e *Engine) TickCount() (total, processed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ticks), e.cursor
}

// AvailableSpeeds 允许的倍速 (升序)
func (e *Engine) AvailableSpeeds() []float64 {
	return append([]float64(nil), e.cfg.AvailableSpeeds...)
}

// do 在锁内执行 fn, 解锁后按顺序分发期间产生的事件.
// 回调中再次调用引擎方法时, 新事件排在当前批次之后由外层循环分发.
func (e *Engine) do(op string, fn func()) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		panic("replay: " + op + " called on disposed engine")
	}
	fn()
	e.deliverLocked()
}

// deliverLocked 必须在持有锁时调用, 返回时已解锁
func (e *Engine) deliverLocked() {
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for len(e.queue) > 0 {
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()
		for _, ev := range batch {
			e.events.Emit(ev)
		}
		e.mu.Lock()
	}
	e.delivering = false
	e.mu.Unlock()
}

func (e *Engine) enqueue(ev Event) {
	e.queue = append(e.queue, ev)
}

// setState 更新状态, 有变化时发出 stateChange
func (e *Engine) setState(next State) {
	if next == e.state {
		return
	}
	e.state = next
	e.enqueue(Event{Type: EventStateChange, State: next})
}

func (e *Engine) seek(timestamp float64) {
	if math.IsNaN(timestamp) {
		return
	}
	target := math.Max(e.state.StartTime, math.Min(e.state.EndTime, timestamp))

	// 与播放一致: 时间戳 <= target 的 Tick 都已处理
	idx := sort.Search(len(e.ticks), func(i int) bool {
		return e.ticks[i].Timestamp > target
	})
	e.rebuild(idx)

	next := e.state
	next.CurrentTime = target
	if next.Status == StatusEnded {
		next.Status = StatusPaused
	}
	e.setState(next)
	e.enqueue(Event{Type: EventReset})

	if e.state.Status == StatusPlaying {
		e.startTimer()
	}
}

// rebuild 从下标 0 重新聚合到 idx (不含), 不发出 tick/bar 事件
func (e *Engine) rebuild(idx int) {
	e.agg.Reset()
	for i := 0; i < idx; i++ {
		e.agg.AddTick(e.ticks[i])
	}
	e.cursor = idx
}

func (e *Engine) startTimer() {
	e.stopTimer()
	e.timerGen++
	gen := e.timerGen
	e.lastFire = e.cfg.Now()
	e.cancelTimer = e.cfg.Scheduler.Start(e.cfg.TimerInterval, func() { e.onTimer(gen) })
}

func (e *Engine) stopTimer() {
	if e.cancelTimer != nil {
		e.cancelTimer()
		e.cancelTimer = nil
	}
	// 已经在途的回调会因代数不匹配被丢弃
	e.timerGen++
}

func (e *Engine) onTimer(gen uint64) {
	e.mu.Lock()
	if e.disposed || gen != e.timerGen || e.state.Status != StatusPlaying {
		e.mu.Unlock()
		return
	}
	e.advance()
	e.deliverLocked()
}

// advance 按真实流逝时间 * 倍速推进虚拟时钟, 并处理所有到期的 Tick
func (e *Engine) advance() {
	now := e.cfg.Now()
	realElapsed := now.Sub(e.lastFire).Seconds()
	e.lastFire = now
	target := e.state.CurrentTime + realElapsed*e.state.Speed

	for e.cursor < len(e.ticks) && e.ticks[e.cursor].Timestamp <= target {
		e.process(e.ticks[e.cursor])
		e.cursor++
	}

	next := e.state
	next.CurrentTime = math.Min(target, e.state.EndTime)
	ended := e.cursor >= len(e.ticks)
	if ended {
		e.stopTimer()
		next.Status = StatusEnded
	}
	e.setState(next)

	if ended {
		e.enqueue(Event{Type: EventEnded, State: e.state})
		e.logger.Info("Replay reached end of session", zap.Int("ticks", len(e.ticks)))
	}
}

// process 聚合一个 Tick; 桶切换时先发出已收盘的 K 线
func (e *Engine) process(tick model.Tick) {
	prev, hadPrev := e.agg.CurrentBar()
	bar := e.agg.AddTick(tick)
	if hadPrev && bar.Time != prev.Time {
		e.enqueue(Event{Type: EventBar, Bar: prev})
	}
	e.enqueue(Event{Type: EventTick, Tick: tick})
}

// snapSpeed 取最接近的允许倍速, 距离相同时取较慢者
func (e *Engine) snapSpeed(speed float64) float64 {
	speeds := e.cfg.AvailableSpeeds
	if math.IsNaN(speed) {
		return e.state.Speed
	}
	switch {
	case math.IsInf(speed, 1):
		return speeds[len(speeds)-1]
	case math.IsInf(speed, -1):
		return speeds[0]
	}
	best := speeds[0]
	for _, s := range speeds[1:] {
		if math.Abs(s-speed) < math.Abs(best-speed) {
			best = s
		}
	}
	return best
}
