// Package session 从磁盘读取录制的会话, 并生成演示用的合成会话
package session

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"tick-replay/internal/codec"
	"tick-replay/internal/model"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Load 读取会话文件, gzip 压缩的文件会先解压
func Load(path string, logger *zap.Logger) ([]model.Tick, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	ticks, err := Decode(raw, logger)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	logger.Info("Session loaded", zap.String("path", path), zap.Int("ticks", len(ticks)))
	return ticks, nil
}

// Decode 按内容判断是否需要解压
func Decode(raw []byte, logger *zap.Logger) ([]model.Tick, error) {
	opts := []codec.Option{codec.WithLogger(logger)}
	if bytes.HasPrefix(raw, gzipMagic) {
		return codec.DecodeGzip(bytes.NewReader(raw), opts...)
	}
	return codec.Decode(raw, opts...)
}

// SyntheticOptions 演示数据参数
type SyntheticOptions struct {
	Seed       int64
	Samples    int
	IntervalMs uint16
	BaseTimeUs uint64
	StartPrice float64
	Publishers []int
}

// DefaultSyntheticOptions 一小时 NBBO 采样, 三家交易所
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Seed:       1,
		Samples:    36_000,
		IntervalMs: codec.DefaultResampleIntervalMs,
		BaseTimeUs: 1_763_128_800_000_000, // 2025-11-14 14:00:00 UTC
		StartPrice: 100,
		Publishers: []int{2, 39, 40},
	}
}

// Synthesize 生成一段随机游走的 Format B 会话 (gzip 压缩)
func Synthesize(opts SyntheticOptions) ([]byte, error) {
	if opts.Samples <= 0 || len(opts.Publishers) == 0 {
		return nil, fmt.Errorf("synthetic session needs samples and publishers")
	}
	if opts.IntervalMs == 0 {
		opts.IntervalMs = codec.DefaultResampleIntervalMs
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	mid := opts.StartPrice
	samples := make([]codec.SampleB, 0, opts.Samples)
	for i := 0; i < opts.Samples; i++ {
		mid = math.Max(0.01, mid+rng.NormFloat64()*0.01)

		s := codec.SampleB{NBBOAsk: math.MaxInt32}
		if i > 0 {
			s.DeltaMs = int32(opts.IntervalMs)
		}
		for idx := range opts.Publishers {
			half := 0.005 + rng.Float64()*0.01
			e := codec.ExchangeEntryB{
				PublisherIdx: uint8(idx),
				BidPx:        int32(codec.ScalePrice(mid - half)),
				AskPx:        int32(codec.ScalePrice(mid + half)),
				BidSz:        uint32(codec.ScaleSize(float64(1 + rng.Intn(500)))),
				AskSz:        uint32(codec.ScaleSize(float64(1 + rng.Intn(500)))),
			}
			if e.BidPx > s.NBBOBid {
				s.NBBOBid, s.NBBOBidSize, s.BestBidPublisher = e.BidPx, int32(e.BidSz), e.PublisherIdx
			}
			if e.AskPx < s.NBBOAsk {
				s.NBBOAsk, s.NBBOAskSize, s.BestAskPublisher = e.AskPx, int32(e.AskSz), e.PublisherIdx
			}
			s.Exchanges = append(s.Exchanges, e)
		}
		samples = append(samples, s)
	}

	raw, err := codec.EncodeFormatB(opts.IntervalMs, opts.BaseTimeUs, opts.Publishers, samples)
	if err != nil {
		return nil, err
	}
	return codec.Deflate(raw)
}
