// Package codec 把录制的 tick 会话从紧凑的二进制布局解码为 model.Tick.
//
// 两种布局共用 "TICK" 魔数, 以头部版本号区分: 版本 2 为逐笔 MBP-1 日志 (Format A),
// 版本 3 为带各交易所快照的 NBBO 重采样日志 (Format B).
// 所有整数均为小端序; 价格为 5 位小数定点数, 数量为 2 位小数定点数.
package codec

import (
	"encoding/binary"

	"go.uber.org/zap"

	"tick-replay/internal/model"
)

const (
	// Magic 文件魔数
	Magic = "TICK"

	VersionA uint16 = 2 // 全量 MBP-1 行
	VersionB uint16 = 3 // NBBO + 交易所快照

	PriceScale = 100_000.0 // 5 位小数
	SizeScale  = 100.0     // 2 位小数
	TimeUnit   = 1_000_000 // 微秒

	// DefaultResampleIntervalMs NBBO 默认重采样间隔
	DefaultResampleIntervalMs uint16 = 100
)

var le = binary.LittleEndian

type options struct {
	logger    *zap.Logger
	onWarning func(*VersionMismatchWarning)
}

// Option 解码选项
type Option func(*options)

// WithLogger 设置用于输出警告的 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWarningHandler 注册非致命解码警告的回调
func WithWarningHandler(fn func(*VersionMismatchWarning)) Option {
	return func(o *options) { o.onWarning = fn }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) warn(w *VersionMismatchWarning) {
	o.logger.Warn("Tick file version mismatch, decoding best-effort",
		zap.Uint16("expected", w.Expected), zap.Uint16("got", w.Got))
	if o.onWarning != nil {
		o.onWarning(w)
	}
}

// Decode 根据头部版本号选择解码格式
func Decode(buf []byte, opts ...Option) ([]model.Tick, error) {
	version, err := readPreamble(buf)
	if err != nil {
		return nil, err
	}
	if version >= VersionB {
		return DecodeFormatB(buf, opts...)
	}
	return DecodeFormatA(buf, opts...)
}

// readPreamble 校验魔数并返回版本号
func readPreamble(buf []byte) (uint16, error) {
	if len(buf) >= len(Magic) && string(buf[:len(Magic)]) != Magic {
		return 0, &FormatError{Magic: append([]byte(nil), buf[:len(Magic)]...)}
	}
	if len(buf) < len(Magic)+2 {
		return 0, &TruncatedDataError{Need: len(Magic) + 2, Have: len(buf), Record: -1}
	}
	return le.Uint16(buf[len(Magic):]), nil
}

func descalePrice(v int64) float64 { return float64(v) / PriceScale }

func descaleSize(v int64) float64 { return float64(v) / SizeScale }

func microsToSeconds(us int64) float64 { return float64(us) / TimeUnit }

// quotePrice 返回买卖中间价; 只有一边有报价时取该边
func quotePrice(bid, ask float64) float64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}
