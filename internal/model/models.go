package model

// Side 标记 Tick 的来源方向 (空字符串表示未知)
type Side string

const (
	SideNone  Side = ""
	SideBid   Side = "bid"
	SideAsk   Side = "ask"
	SideTrade Side = "trade"
)

// ExchangeSnapshot 是单个交易所 (publisher) 在某一时刻的最优买卖报价
type ExchangeSnapshot struct {
	PublisherID int     `json:"publisherId"`
	BidPrice    float64 `json:"bidPrice"`
	AskPrice    float64 `json:"askPrice"`
	BidSize     float64 `json:"bidSize"`
	AskSize     float64 `json:"askSize"`
}

// TickMetadata 携带 Tick 的盘口信息
type TickMetadata struct {
	Bid       float64            `json:"bid"`
	Ask       float64            `json:"ask"`
	BidSize   float64            `json:"bidSize"`
	AskSize   float64            `json:"askSize"`
	Exchanges []ExchangeSnapshot `json:"exchanges,omitempty"`
}

// Tick 代表最小粒度的市场数据（成交或报价快照）
type Tick struct {
	Timestamp float64       `json:"timestamp"` // 秒 (可带小数)
	Price     float64       `json:"price"`
	Volume    float64       `json:"volume,omitempty"` // 0 表示缺失
	Side      Side          `json:"side,omitempty"`
	Metadata  *TickMetadata `json:"metadata,omitempty"`
}

// Exchanges 返回 Tick 携带的各交易所快照 (可能为空)
func (t Tick) Exchanges() []ExchangeSnapshot {
	if t.Metadata == nil {
		return nil
	}
	return t.Metadata.Exchanges
}

// Bar 代表聚合后的 K 线数据, Time 为桶的起始时间 (秒)
type Bar struct {
	Time   float64 `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
