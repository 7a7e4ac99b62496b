package codec

import (
	"fmt"
	"strconv"
	"strings"

	"tick-replay/internal/model"
)

const (
	// HeaderFixedSizeB 魔数(4) + 版本(2) + 间隔(2) + 采样数(4) + 基准时间(8) + 映射长度(2)
	HeaderFixedSizeB  = 22
	SampleFixedSizeB  = 23 // delta(4) + 4*px/sz(16) + best bid/ask idx(2) + count(1)
	ExchangeEntrySize = 17 // idx(1) + 4*px/sz(16)
)

// HeaderB Format B 文件头
type HeaderB struct {
	Version            uint16
	ResampleIntervalMs uint16
	SampleCount        uint32
	BaseTimeUs         uint64
	Publishers         map[uint8]int // publisher 索引 -> publisher id
}

// ExchangeEntryB 单个交易所在一个采样点上的报价
type ExchangeEntryB struct {
	PublisherIdx uint8
	BidPx        int32
	AskPx        int32
	BidSz        uint32
	AskSz        uint32
}

// SampleB 一个 NBBO 采样点
type SampleB struct {
	DeltaMs          int32 // 相对上一采样点的增量 (毫秒)
	NBBOBid          int32
	NBBOAsk          int32
	NBBOBidSize      int32
	NBBOAskSize      int32
	BestBidPublisher uint8
	BestAskPublisher uint8
	Exchanges        []ExchangeEntryB
}

// ParsePublisherMap 解析 "idx:publisherId,idx:publisherId" 格式的映射
func ParsePublisherMap(s string) (map[uint8]int, error) {
	out := make(map[uint8]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		idxStr, idStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, &FormatError{Reason: fmt.Sprintf("publisher map entry %q has no ':'", pair)}
		}
		idx, err := strconv.ParseUint(strings.TrimSpace(idxStr), 10, 8)
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("publisher map index %q: %v", idxStr, err)}
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("publisher map id %q: %v", idStr, err)}
		}
		out[uint8(idx)] = id
	}
	return out, nil
}

// FormatPublisherMap 是 ParsePublisherMap 的逆操作, 按索引升序写出
func FormatPublisherMap(publishers []int) string {
	parts := make([]string, len(publishers))
	for idx, id := range publishers {
		parts[idx] = strconv.Itoa(idx) + ":" + strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func readHeaderB(buf []byte) (HeaderB, int, error) {
	if len(buf) < HeaderFixedSizeB {
		return HeaderB{}, 0, &TruncatedDataError{Need: HeaderFixedSizeB, Have: len(buf), Record: -1}
	}
	h := HeaderB{
		Version:            le.Uint16(buf[4:]),
		ResampleIntervalMs: le.Uint16(buf[6:]),
		SampleCount:        le.Uint32(buf[8:]),
		BaseTimeUs:         le.Uint64(buf[12:]),
	}
	mapLen := int(le.Uint16(buf[20:]))
	end := HeaderFixedSizeB + mapLen
	if len(buf) < end {
		return HeaderB{}, 0, &TruncatedDataError{Need: end, Have: len(buf), Record: -1}
	}
	publishers, err := ParsePublisherMap(string(buf[HeaderFixedSizeB:end]))
	if err != nil {
		return HeaderB{}, 0, err
	}
	h.Publishers = publishers
	return h, end, nil
}

// DecodeFormatB 解码重采样后的 NBBO 日志
func DecodeFormatB(buf []byte, opts ...Option) ([]model.Tick, error) {
	o := buildOptions(opts)

	if _, err := readPreamble(buf); err != nil {
		return nil, err
	}
	header, offset, err := readHeaderB(buf)
	if err != nil {
		return nil, err
	}
	if header.Version != VersionB {
		o.warn(&VersionMismatchWarning{Expected: VersionB, Got: header.Version})
	}

	samples := int(header.SampleCount)
	// 每个采样至少 SampleFixedSizeB 字节, 提前拒绝明显截断的数据
	if minLen := offset + samples*SampleFixedSizeB; len(buf) < minLen {
		return nil, &TruncatedDataError{Need: minLen, Have: len(buf), Record: (len(buf) - offset) / SampleFixedSizeB}
	}

	ticks := make([]model.Tick, 0, samples)
	cumulativeMs := int64(0)
	base := int64(header.BaseTimeUs)
	for i := 0; i < samples; i++ {
		sample, n, err := readSampleB(buf, offset, i)
		if err != nil {
			return nil, err
		}
		offset += n
		cumulativeMs += int64(sample.DeltaMs)
		ticks = append(ticks, sample.toTick(base+cumulativeMs*1000, header.Publishers))
	}
	return ticks, nil
}

func readSampleB(buf []byte, offset, record int) (SampleB, int, error) {
	if len(buf) < offset+SampleFixedSizeB {
		return SampleB{}, 0, &TruncatedDataError{Need: offset + SampleFixedSizeB, Have: len(buf), Record: record}
	}
	row := buf[offset:]
	s := SampleB{
		DeltaMs:          int32(le.Uint32(row[0:])),
		NBBOBid:          int32(le.Uint32(row[4:])),
		NBBOAsk:          int32(le.Uint32(row[8:])),
		NBBOBidSize:      int32(le.Uint32(row[12:])),
		NBBOAskSize:      int32(le.Uint32(row[16:])),
		BestBidPublisher: row[20],
		BestAskPublisher: row[21],
	}
	count := int(row[22])
	size := SampleFixedSizeB + count*ExchangeEntrySize
	if len(buf) < offset+size {
		return SampleB{}, 0, &TruncatedDataError{Need: offset + size, Have: len(buf), Record: record}
	}
	s.Exchanges = make([]ExchangeEntryB, count)
	for j := 0; j < count; j++ {
		e := row[SampleFixedSizeB+j*ExchangeEntrySize:]
		s.Exchanges[j] = ExchangeEntryB{
			PublisherIdx: e[0],
			BidPx:        int32(le.Uint32(e[1:])),
			AskPx:        int32(le.Uint32(e[5:])),
			BidSz:        le.Uint32(e[9:]),
			AskSz:        le.Uint32(e[13:]),
		}
	}
	return s, size, nil
}

func resolvePublisher(publishers map[uint8]int, idx uint8) int {
	if id, ok := publishers[idx]; ok {
		return id
	}
	return int(idx)
}

func (s SampleB) toTick(timestampUs int64, publishers map[uint8]int) model.Tick {
	bid := descalePrice(int64(s.NBBOBid))
	ask := descalePrice(int64(s.NBBOAsk))

	exchanges := make([]model.ExchangeSnapshot, len(s.Exchanges))
	for i, e := range s.Exchanges {
		exchanges[i] = model.ExchangeSnapshot{
			PublisherID: resolvePublisher(publishers, e.PublisherIdx),
			BidPrice:    descalePrice(int64(e.BidPx)),
			AskPrice:    descalePrice(int64(e.AskPx)),
			BidSize:     descaleSize(int64(e.BidSz)),
			AskSize:     descaleSize(int64(e.AskSz)),
		}
	}

	return model.Tick{
		Timestamp: microsToSeconds(timestampUs),
		Price:     quotePrice(bid, ask),
		Metadata: &model.TickMetadata{
			Bid:       bid,
			Ask:       ask,
			BidSize:   descaleSize(int64(s.NBBOBidSize)),
			AskSize:   descaleSize(int64(s.NBBOAskSize)),
			Exchanges: exchanges,
		},
	}
}
