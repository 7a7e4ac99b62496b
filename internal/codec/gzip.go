package codec

import (
	"bytes"
	"compress/gzip"
	"io"

	"tick-replay/internal/model"
)

// Inflate 解压 .bin.gz 会话文件
func Inflate(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, &DecompressionError{Err: err}
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecompressionError{Err: err}
	}
	return raw, nil
}

// DecodeGzip 解压后解码
func DecodeGzip(r io.Reader, opts ...Option) ([]model.Tick, error) {
	raw, err := Inflate(r)
	if err != nil {
		return nil, err
	}
	return Decode(raw, opts...)
}

// Deflate 以最高压缩级别 gzip 编码后的数据
func Deflate(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
