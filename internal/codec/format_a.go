package codec

import (
	"tick-replay/internal/model"
)

const (
	HeaderSizeA = 18 // magic(4) + version(2) + rows(4) + base ts(8)
	RowSizeA    = 64
)

// RecordA 是 Format A 的一行 MBP-1 数据 (未缩放的原始整数)
type RecordA struct {
	DeltaUs      int64 // 相对上一行累计时间戳的增量 (微秒)
	RType        uint8
	PublisherID  uint16
	InstrumentID uint32
	Action       byte // ASCII: A/C/M/R/T/F
	Side         byte // ASCII: A/B/N
	Depth        uint8
	Price        int64
	Size         int32
	Flags        uint16
	TsInDelta    int32
	Sequence     uint32
	BidPx        int32
	AskPx        int32
	BidSz        int32
	AskSz        int32
	BidCount     uint32
	AskCount     uint32
}

// HeaderA Format A 文件头
type HeaderA struct {
	Version    uint16
	RowCount   uint32
	BaseTimeUs uint64
}

func readHeaderA(buf []byte) (HeaderA, error) {
	if len(buf) < HeaderSizeA {
		return HeaderA{}, &TruncatedDataError{Need: HeaderSizeA, Have: len(buf), Record: -1}
	}
	return HeaderA{
		Version:    le.Uint16(buf[4:]),
		RowCount:   le.Uint32(buf[6:]),
		BaseTimeUs: le.Uint64(buf[10:]),
	}, nil
}

func readRecordA(row []byte) RecordA {
	return RecordA{
		DeltaUs:      int64(le.Uint64(row[0:])),
		RType:        row[8],
		PublisherID:  le.Uint16(row[9:]),
		InstrumentID: le.Uint32(row[11:]),
		Action:       row[15],
		Side:         row[16],
		Depth:        row[17],
		Price:        int64(le.Uint64(row[18:])),
		Size:         int32(le.Uint32(row[26:])),
		Flags:        le.Uint16(row[30:]),
		TsInDelta:    int32(le.Uint32(row[32:])),
		Sequence:     le.Uint32(row[36:]),
		BidPx:        int32(le.Uint32(row[40:])),
		AskPx:        int32(le.Uint32(row[44:])),
		BidSz:        int32(le.Uint32(row[48:])),
		AskSz:        int32(le.Uint32(row[52:])),
		BidCount:     le.Uint32(row[56:]),
		AskCount:     le.Uint32(row[60:]),
	}
}

// DecodeFormatA 解码 per-tick MBP-1 日志
func DecodeFormatA(buf []byte, opts ...Option) ([]model.Tick, error) {
	o := buildOptions(opts)

	if _, err := readPreamble(buf); err != nil {
		return nil, err
	}
	header, err := readHeaderA(buf)
	if err != nil {
		return nil, err
	}
	if header.Version != VersionA {
		o.warn(&VersionMismatchWarning{Expected: VersionA, Got: header.Version})
	}

	rows := int(header.RowCount)
	need := HeaderSizeA + rows*RowSizeA
	if len(buf) < need {
		return nil, &TruncatedDataError{
			Need:   need,
			Have:   len(buf),
			Record: (len(buf) - HeaderSizeA) / RowSizeA,
		}
	}

	ticks := make([]model.Tick, 0, rows)
	cumulative := int64(header.BaseTimeUs)
	for i := 0; i < rows; i++ {
		offset := HeaderSizeA + i*RowSizeA
		rec := readRecordA(buf[offset : offset+RowSizeA])
		cumulative += rec.DeltaUs
		ticks = append(ticks, rec.toTick(cumulative))
	}
	return ticks, nil
}

func (r RecordA) toTick(timestampUs int64) model.Tick {
	bid := descalePrice(int64(r.BidPx))
	ask := descalePrice(int64(r.AskPx))
	bidSize := descaleSize(int64(r.BidSz))
	askSize := descaleSize(int64(r.AskSz))

	price := descalePrice(r.Price)
	if price <= 0 {
		price = quotePrice(bid, ask)
	}

	return model.Tick{
		Timestamp: microsToSeconds(timestampUs),
		Price:     price,
		Volume:    descaleSize(int64(r.Size)),
		Side:      r.side(),
		Metadata: &model.TickMetadata{
			Bid:     bid,
			Ask:     ask,
			BidSize: bidSize,
			AskSize: askSize,
			Exchanges: []model.ExchangeSnapshot{{
				PublisherID: int(r.PublisherID),
				BidPrice:    bid,
				AskPrice:    ask,
				BidSize:     bidSize,
				AskSize:     askSize,
			}},
		},
	}
}

// side 成交 (T/F) 优先, 其余按 B/A 区分
func (r RecordA) side() model.Side {
	switch r.Action {
	case 'T', 'F':
		return model.SideTrade
	}
	switch r.Side {
	case 'B':
		return model.SideBid
	case 'A':
		return model.SideAsk
	}
	return model.SideNone
}
