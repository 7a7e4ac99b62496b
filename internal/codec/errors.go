package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat 匹配所有 *FormatError
	ErrFormat = errors.New("invalid tick file format")
	// ErrTruncated 匹配所有 *TruncatedDataError
	ErrTruncated = errors.New("truncated tick data")
	// ErrDecompression 匹配所有 *DecompressionError
	ErrDecompression = errors.New("tick data decompression failed")
)

// FormatError 表示魔数不匹配或头部内容无法解析, 解码整体中止
type FormatError struct {
	Magic  []byte
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%s: magic %q, expected %q", ErrFormat, e.Magic, Magic)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// TruncatedDataError 表示缓冲区字节数少于头部声明的长度, 不返回部分数据
type TruncatedDataError struct {
	Need   int // 至少需要的字节数
	Have   int
	Record int // 出错的行号, -1 表示头部
}

func (e *TruncatedDataError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("%s: header needs %d bytes, have %d", ErrTruncated, e.Need, e.Have)
	}
	return fmt.Sprintf("%s: record %d needs %d bytes, have %d", ErrTruncated, e.Record, e.Need, e.Have)
}

func (e *TruncatedDataError) Is(target error) bool { return target == ErrTruncated }

// DecompressionError 包装 gzip 会话文件解压失败
type DecompressionError struct {
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDecompression, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

func (e *DecompressionError) Is(target error) bool { return target == ErrDecompression }

// VersionMismatchWarning 头部版本与解码布局不一致时上报 (只通过回调和日志, 不作为错误返回)
type VersionMismatchWarning struct {
	Expected uint16
	Got      uint16
}

func (w *VersionMismatchWarning) Error() string {
	return fmt.Sprintf("tick file version %d, decoder implements %d; decoding best-effort", w.Got, w.Expected)
}
