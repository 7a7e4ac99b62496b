package codec

import (
	"fmt"
	"math"
)

// EncodeFormatA 按 Format A 布局写出 MBP-1 行, 与 DecodeFormatA 互逆
func EncodeFormatA(baseTimeUs uint64, records []RecordA) []byte {
	buf := make([]byte, 0, HeaderSizeA+len(records)*RowSizeA)
	buf = append(buf, Magic...)
	buf = le.AppendUint16(buf, VersionA)
	buf = le.AppendUint32(buf, uint32(len(records)))
	buf = le.AppendUint64(buf, baseTimeUs)

	for _, r := range records {
		buf = le.AppendUint64(buf, uint64(r.DeltaUs))
		buf = append(buf, r.RType)
		buf = le.AppendUint16(buf, r.PublisherID)
		buf = le.AppendUint32(buf, r.InstrumentID)
		buf = append(buf, r.Action, r.Side, r.Depth)
		buf = le.AppendUint64(buf, uint64(r.Price))
		buf = le.AppendUint32(buf, uint32(r.Size))
		buf = le.AppendUint16(buf, r.Flags)
		buf = le.AppendUint32(buf, uint32(r.TsInDelta))
		buf = le.AppendUint32(buf, r.Sequence)
		buf = le.AppendUint32(buf, uint32(r.BidPx))
		buf = le.AppendUint32(buf, uint32(r.AskPx))
		buf = le.AppendUint32(buf, uint32(r.BidSz))
		buf = le.AppendUint32(buf, uint32(r.AskSz))
		buf = le.AppendUint32(buf, r.BidCount)
		buf = le.AppendUint32(buf, r.AskCount)
	}
	return buf
}

// EncodeFormatB 按 Format B 布局写出 NBBO 采样; publishers[i] 是索引 i 对应的 publisher id
func EncodeFormatB(intervalMs uint16, baseTimeUs uint64, publishers []int, samples []SampleB) ([]byte, error) {
	if len(publishers) > math.MaxUint8+1 {
		return nil, fmt.Errorf("too many publishers: %d", len(publishers))
	}
	pubMap := FormatPublisherMap(publishers)
	if len(pubMap) > math.MaxUint16 {
		return nil, fmt.Errorf("publisher map too long: %d bytes", len(pubMap))
	}

	buf := make([]byte, 0, HeaderFixedSizeB+len(pubMap)+len(samples)*SampleFixedSizeB)
	buf = append(buf, Magic...)
	buf = le.AppendUint16(buf, VersionB)
	buf = le.AppendUint16(buf, intervalMs)
	buf = le.AppendUint32(buf, uint32(len(samples)))
	buf = le.AppendUint64(buf, baseTimeUs)
	buf = le.AppendUint16(buf, uint16(len(pubMap)))
	buf = append(buf, pubMap...)

	for i, s := range samples {
		if len(s.Exchanges) > math.MaxUint8 {
			return nil, fmt.Errorf("sample %d: too many exchanges: %d", i, len(s.Exchanges))
		}
		buf = le.AppendUint32(buf, uint32(s.DeltaMs))
		buf = le.AppendUint32(buf, uint32(s.NBBOBid))
		buf = le.AppendUint32(buf, uint32(s.NBBOAsk))
		buf = le.AppendUint32(buf, uint32(s.NBBOBidSize))
		buf = le.AppendUint32(buf, uint32(s.NBBOAskSize))
		buf = append(buf, s.BestBidPublisher, s.BestAskPublisher, uint8(len(s.Exchanges)))
		for _, e := range s.Exchanges {
			buf = append(buf, e.PublisherIdx)
			buf = le.AppendUint32(buf, uint32(e.BidPx))
			buf = le.AppendUint32(buf, uint32(e.AskPx))
			buf = le.AppendUint32(buf, e.BidSz)
			buf = le.AppendUint32(buf, e.AskSz)
		}
	}
	return buf, nil
}

// ScalePrice 把浮点价格转换为 5 位小数的定点整数
func ScalePrice(p float64) int64 { return int64(math.Round(p * PriceScale)) }

// ScaleSize 把浮点数量转换为 2 位小数的定点整数
func ScaleSize(s float64) int64 { return int64(math.Round(s * SizeScale)) }
