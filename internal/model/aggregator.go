package model

import (
	"math"
	"sort"
)

// DefaultBarInterval K 线默认周期 (秒)
const DefaultBarInterval = 60.0

// TickAggregator 负责把按时间排序的 Tick 聚合为固定周期的 K 线.
// 它不是并发安全的, 由 ReplayEngine 独占.
type TickAggregator struct {
	interval float64
	bars     map[float64]*Bar // Key: 桶起始时间
	order    []float64        // 桶起始时间, 按首次出现顺序 (输入有序时即升序)
	current  *Bar             // 最近一次被更新的 K 线
}

// NewTickAggregator 创建一个新的聚合器, interval <= 0 时使用默认周期
func NewTickAggregator(interval float64) *TickAggregator {
	if interval <= 0 {
		interval = DefaultBarInterval
	}
	return &TickAggregator{
		interval: interval,
		bars:     make(map[float64]*Bar),
	}
}

// Interval 返回桶宽 (秒)
func (agg *TickAggregator) Interval() float64 {
	return agg.interval
}

// BucketTime 将时间戳对齐到 K 线起始时间
func (agg *TickAggregator) BucketTime(timestamp float64) float64 {
	return math.Floor(timestamp/agg.interval) * agg.interval
}

// AddTick 将 Tick 聚合到所属的 K 线, 返回更新后的 K 线副本
func (agg *TickAggregator) AddTick(tick Tick) Bar {
	bucket := agg.BucketTime(tick.Timestamp)

	bar, ok := agg.bars[bucket]
	if !ok {
		// 新周期: 以当前价格开盘
		bar = &Bar{
			Time:   bucket,
			Open:   tick.Price,
			High:   tick.Price,
			Low:    tick.Price,
			Close:  tick.Price,
			Volume: tick.Volume,
		}
		agg.bars[bucket] = bar
		agg.order = append(agg.order, bucket)
		agg.current = bar
		return *bar
	}

	// 更新 OHLCV
	bar.High = math.Max(bar.High, tick.Price)
	bar.Low = math.Min(bar.Low, tick.Price)
	bar.Close = tick.Price
	bar.Volume += tick.Volume
	agg.current = bar
	return *bar
}

// CurrentBar 返回最近一次被更新的 K 线
func (agg *TickAggregator) CurrentBar() (Bar, bool) {
	if agg.current == nil {
		return Bar{}, false
	}
	return *agg.current, true
}

// BarsUntil 返回所有起始时间 <= timestamp 所在桶的 K 线, 按时间升序
func (agg *TickAggregator) BarsUntil(timestamp float64) []Bar {
	limit := agg.BucketTime(timestamp)
	out := make([]Bar, 0, len(agg.order))
	for _, t := range agg.order {
		if t <= limit {
			out = append(out, *agg.bars[t])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Bars 返回全部 K 线, 按时间升序
func (agg *TickAggregator) Bars() []Bar {
	return agg.BarsUntil(math.Inf(1))
}

// Len 当前 K 线数量
func (agg *TickAggregator) Len() int {
	return len(agg.order)
}

// Reset 清空所有 K 线
func (agg *TickAggregator) Reset() {
	agg.bars = make(map[float64]*Bar)
	agg.order = nil
	agg.current = nil
}

// SetInterval 修改周期并隐式 Reset, 旧 K 线不会重新分桶
func (agg *TickAggregator) SetInterval(seconds float64) {
	if seconds > 0 {
		agg.interval = seconds
	}
	agg.Reset()
}
