// Package orderbook 根据回放 Tick 携带的交易所快照维护各交易所的最优买卖价
package orderbook

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tick-replay/internal/model"
)

// DefaultPriceDecimals 聚合模式下价格档位的默认小数位
const DefaultPriceDecimals int32 = 2

// Entry 单个交易所最近一次的报价
type Entry struct {
	PublisherID    int     `json:"publisherId"`
	BidPrice       float64 `json:"bidPrice"`
	AskPrice       float64 `json:"askPrice"`
	BidSize        float64 `json:"bidSize"`
	AskSize        float64 `json:"askSize"`
	LastUpdateTime float64 `json:"lastUpdateTime"`
}

// Level 是按交易所展开的一档报价
type Level struct {
	PublisherID    int     `json:"publisherId"`
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	LastUpdateTime float64 `json:"lastUpdateTime"`
}

// Book bids 价格从高到低, asks 价格从低到高
type Book struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// PriceLevel 是按价格聚合后的一档, Size 为该价位所有交易所之和
type PriceLevel struct {
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Publishers []int   `json:"publishers"`
}

// AggregatedBook 按价格档位聚合后的盘口
type AggregatedBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// View 维护每个 publisher 的最优买卖价. 条目不会按时间过期, 只能通过 Clear 清空.
type View struct {
	mu      sync.RWMutex
	entries map[int]Entry
	logger  *zap.Logger
}

// NewView 创建空的盘口视图
func NewView(logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		entries: make(map[int]Entry),
		logger:  logger,
	}
}

// Update 以 publisher id 为键覆盖写入 (后写覆盖, 不合并部分字段)
func (v *View) Update(timestamp float64, snapshots []model.ExchangeSnapshot) {
	if len(snapshots) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, s := range snapshots {
		if _, seen := v.entries[s.PublisherID]; !seen {
			v.logger.Debug("New publisher in order book", zap.Int("publisherId", s.PublisherID))
		}
		v.entries[s.PublisherID] = Entry{
			PublisherID:    s.PublisherID,
			BidPrice:       s.BidPrice,
			AskPrice:       s.AskPrice,
			BidSize:        s.BidSize,
			AskSize:        s.AskSize,
			LastUpdateTime: timestamp,
		}
	}
}

// ApplyTick 写入 Tick 携带的交易所快照
func (v *View) ApplyTick(tick model.Tick) {
	v.Update(tick.Timestamp, tick.Exchanges())
}

// OrderBook 返回 size >= minSize 且价格为正的买卖盘
func (v *View) OrderBook(minSize float64) Book {
	v.mu.RLock()
	defer v.mu.RUnlock()

	book := Book{Bids: []Level{}, Asks: []Level{}}
	for _, e := range v.entries {
		if e.BidPrice > 0 && e.BidSize >= minSize {
			book.Bids = append(book.Bids, Level{PublisherID: e.PublisherID, Price: e.BidPrice, Size: e.BidSize, LastUpdateTime: e.LastUpdateTime})
		}
		if e.AskPrice > 0 && e.AskSize >= minSize {
			book.Asks = append(book.Asks, Level{PublisherID: e.PublisherID, Price: e.AskPrice, Size: e.AskSize, LastUpdateTime: e.LastUpdateTime})
		}
	}

	sort.Slice(book.Bids, func(i, j int) bool {
		if book.Bids[i].Price != book.Bids[j].Price {
			return book.Bids[i].Price > book.Bids[j].Price
		}
		return book.Bids[i].PublisherID < book.Bids[j].PublisherID
	})
	sort.Slice(book.Asks, func(i, j int) bool {
		if book.Asks[i].Price != book.Asks[j].Price {
			return book.Asks[i].Price < book.Asks[j].Price
		}
		return book.Asks[i].PublisherID < book.Asks[j].PublisherID
	})
	return book
}

// AggregatedOrderBook 先按 minSize 过滤, 再把价格四舍五入到 decimals 位后按档位累加数量
func (v *View) AggregatedOrderBook(minSize float64, decimals int32) AggregatedBook {
	book := v.OrderBook(minSize)
	return AggregatedBook{
		Bids: aggregate(book.Bids, decimals, true),
		Asks: aggregate(book.Asks, decimals, false),
	}
}

func aggregate(levels []Level, decimals int32, descending bool) []PriceLevel {
	type bucket struct {
		price      decimal.Decimal
		size       decimal.Decimal
		publishers []int
	}
	buckets := make(map[string]*bucket)
	for _, l := range levels {
		price := decimal.NewFromFloat(l.Price).Round(decimals)
		key := price.String()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{price: price}
			buckets[key] = b
		}
		b.size = b.size.Add(decimal.NewFromFloat(l.Size))
		b.publishers = append(b.publishers, l.PublisherID)
	}

	out := make([]PriceLevel, 0, len(buckets))
	for _, b := range buckets {
		sort.Ints(b.publishers)
		out = append(out, PriceLevel{
			Price:      b.price.InexactFloat64(),
			Size:       b.size.InexactFloat64(),
			Publishers: b.publishers,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// BestBid 返回所有交易所中最高的买价
func (v *View) BestBid() (Level, bool) {
	book := v.OrderBook(0)
	if len(book.Bids) == 0 {
		return Level{}, false
	}
	return book.Bids[0], true
}

// BestAsk 返回所有交易所中最低的卖价
func (v *View) BestAsk() (Level, bool) {
	book := v.OrderBook(0)
	if len(book.Asks) == 0 {
		return Level{}, false
	}
	return book.Asks[0], true
}

// Entries 返回所有条目, 按 publisher id 升序
func (v *View) Entries() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Entry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublisherID < out[j].PublisherID })
	return out
}

// Len 自上次 Clear 以来出现过的 publisher 数量
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Clear 清空所有条目 (会话重置时调用)
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[int]Entry)
}
