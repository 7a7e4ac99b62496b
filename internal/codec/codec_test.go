package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-replay/internal/model"
)

const baseUs = uint64(1_700_000_000_000_000)

func sampleRecordsA() []RecordA {
	return []RecordA{
		{DeltaUs: 0, PublisherID: 2, Action: 'A', Side: 'B', BidPx: 1_000_000, AskPx: 1_050_000, BidSz: 10_000, AskSz: 5_000},
		{DeltaUs: 1_500_000, PublisherID: 9, Action: 'T', Side: 'A', Price: 1_020_000, Size: 250, BidPx: 1_000_000, AskPx: 1_040_000},
		{DeltaUs: 500_000, PublisherID: 2, Action: 'C', Side: 'A', BidPx: 990_000, AskPx: 1_030_000},
	}
}

func TestDecodeFormatA(t *testing.T) {
	t.Parallel()
	ticks, err := Decode(EncodeFormatA(baseUs, sampleRecordsA()))
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.InDelta(t, 1_700_000_000.0, ticks[0].Timestamp, 1e-6)
	assert.InDelta(t, 1_700_000_001.5, ticks[1].Timestamp, 1e-6)
	assert.InDelta(t, 1_700_000_002.0, ticks[2].Timestamp, 1e-6, "deltas accumulate")

	assert.Equal(t, 10.25, ticks[0].Price, "quote rows use the bid/ask mid")
	assert.Equal(t, model.SideBid, ticks[0].Side)
	require.NotNil(t, ticks[0].Metadata)
	assert.Equal(t, 10.0, ticks[0].Metadata.Bid)
	assert.Equal(t, 10.5, ticks[0].Metadata.Ask)
	assert.Equal(t, 100.0, ticks[0].Metadata.BidSize)
	assert.Equal(t, 50.0, ticks[0].Metadata.AskSize)
	require.Len(t, ticks[0].Exchanges(), 1)
	assert.Equal(t, 2, ticks[0].Exchanges()[0].PublisherID)

	assert.Equal(t, 10.2, ticks[1].Price, "trade rows use the trade price")
	assert.Equal(t, 2.5, ticks[1].Volume)
	assert.Equal(t, model.SideTrade, ticks[1].Side)
	assert.Equal(t, 9, ticks[1].Exchanges()[0].PublisherID)

	assert.Equal(t, model.SideAsk, ticks[2].Side)
}

func TestDecodeFormatAZeroRows(t *testing.T) {
	t.Parallel()
	ticks, err := DecodeFormatA(EncodeFormatA(baseUs, nil))
	require.NoError(t, err)
	assert.Empty(t, ticks)
	assert.NotNil(t, ticks)
}

func TestDecodeBadMagic(t *testing.T) {
	t.Parallel()
	buf := EncodeFormatA(baseUs, sampleRecordsA())
	copy(buf, "TOCK")

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrFormat)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []byte("TOCK"), fe.Magic)

	_, err = DecodeFormatB(buf)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeFormatATruncated(t *testing.T) {
	t.Parallel()
	buf := EncodeFormatA(baseUs, sampleRecordsA())

	ticks, err := Decode(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrTruncated)
	assert.Nil(t, ticks, "no partial rows on truncation")
	var te *TruncatedDataError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Record)

	_, err = Decode(buf[:10])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeVersionMismatchWarns(t *testing.T) {
	t.Parallel()
	buf := EncodeFormatA(baseUs, sampleRecordsA())
	le.PutUint16(buf[4:], 1)

	var warnings []*VersionMismatchWarning
	ticks, err := Decode(buf, WithWarningHandler(func(w *VersionMismatchWarning) {
		warnings = append(warnings, w)
	}))
	require.NoError(t, err, "version mismatch must not fail the decode")
	assert.Len(t, ticks, 3)
	require.Len(t, warnings, 1)
	assert.Equal(t, VersionA, warnings[0].Expected)
	assert.Equal(t, uint16(1), warnings[0].Got)
}

func TestDecodeNonDecreasingTimestamps(t *testing.T) {
	t.Parallel()
	records := make([]RecordA, 50)
	for i := range records {
		records[i] = RecordA{DeltaUs: int64(i % 7 * 1000), BidPx: 100_000, AskPx: 200_000}
	}
	ticks, err := DecodeFormatA(EncodeFormatA(baseUs, records))
	require.NoError(t, err)
	for i := 1; i < len(ticks); i++ {
		assert.GreaterOrEqual(t, ticks[i].Timestamp, ticks[i-1].Timestamp)
	}
}

func sampleSamplesB() []SampleB {
	return []SampleB{
		{
			DeltaMs: 0, NBBOBid: 1_000_000, NBBOAsk: 1_050_000, NBBOBidSize: 10_000, NBBOAskSize: 5_000,
			BestBidPublisher: 0, BestAskPublisher: 1,
			Exchanges: []ExchangeEntryB{
				{PublisherIdx: 0, BidPx: 1_000_000, AskPx: 1_060_000, BidSz: 10_000, AskSz: 2_000},
				{PublisherIdx: 1, BidPx: 990_000, AskPx: 1_050_000, BidSz: 3_000, AskSz: 5_000},
			},
		},
		{DeltaMs: 100, NBBOBid: 1_010_000, NBBOAsk: 1_050_000},
		{
			DeltaMs: 250, NBBOBid: 1_010_000, NBBOAsk: 1_040_000,
			Exchanges: []ExchangeEntryB{{PublisherIdx: 7, BidPx: 1_010_000, AskPx: 1_040_000}},
		},
	}
}

func TestDecodeFormatB(t *testing.T) {
	t.Parallel()
	buf, err := EncodeFormatB(DefaultResampleIntervalMs, baseUs, []int{2, 39}, sampleSamplesB())
	require.NoError(t, err)

	ticks, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.InDelta(t, 1_700_000_000.0, ticks[0].Timestamp, 1e-6)
	assert.InDelta(t, 1_700_000_000.1, ticks[1].Timestamp, 1e-6)
	assert.InDelta(t, 1_700_000_000.35, ticks[2].Timestamp, 1e-6)

	assert.Equal(t, 10.25, ticks[0].Price)
	require.Len(t, ticks[0].Exchanges(), 2)
	assert.Equal(t, model.ExchangeSnapshot{PublisherID: 2, BidPrice: 10, AskPrice: 10.6, BidSize: 100, AskSize: 20}, ticks[0].Exchanges()[0])
	assert.Equal(t, 39, ticks[0].Exchanges()[1].PublisherID)
	assert.Empty(t, ticks[1].Exchanges())
	assert.Equal(t, 7, ticks[2].Exchanges()[0].PublisherID, "unmapped index falls back to the raw index")
}

func TestDecodeFormatBTruncatedExchanges(t *testing.T) {
	t.Parallel()
	buf, err := EncodeFormatB(DefaultResampleIntervalMs, baseUs, []int{2, 39}, sampleSamplesB())
	require.NoError(t, err)

	_, err = DecodeFormatB(buf[:len(buf)-3])
	require.ErrorIs(t, err, ErrTruncated)
	var te *TruncatedDataError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Record)
}

func TestDecodeFormatBZeroSamples(t *testing.T) {
	t.Parallel()
	buf, err := EncodeFormatB(DefaultResampleIntervalMs, baseUs, nil, nil)
	require.NoError(t, err)
	ticks, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestDecodeFormatBVersionMismatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		version uint16
		decode  func([]byte, ...Option) ([]model.Tick, error)
	}{
		// 直接按 B 解码, 头部写的却是 A 的版本号
		{name: "format b with version 2 header", version: VersionA, decode: DecodeFormatB},
		// 版本 >= 3 都走 B
		{name: "decode routes version 4 to format b", version: 4, decode: Decode},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf, err := EncodeFormatB(DefaultResampleIntervalMs, baseUs, []int{2, 39}, sampleSamplesB())
			require.NoError(t, err)
			le.PutUint16(buf[4:], tt.version)

			var warnings []*VersionMismatchWarning
			ticks, err := tt.decode(buf, WithWarningHandler(func(w *VersionMismatchWarning) {
				warnings = append(warnings, w)
			}))
			require.NoError(t, err, "version mismatch must not fail the decode")
			require.Len(t, ticks, 3)
			require.Len(t, ticks[0].Exchanges(), 2)
			assert.Equal(t, 39, ticks[0].Exchanges()[1].PublisherID)
			assert.InDelta(t, 1_700_000_000.35, ticks[2].Timestamp, 1e-6)

			require.Len(t, warnings, 1)
			assert.Equal(t, VersionB, warnings[0].Expected)
			assert.Equal(t, tt.version, warnings[0].Got)
		})
	}
}

func TestParsePublisherMap(t *testing.T) {
	t.Parallel()
	m, err := ParsePublisherMap("0:2, 1:39,2:41")
	require.NoError(t, err)
	assert.Equal(t, map[uint8]int{0: 2, 1: 39, 2: 41}, m)

	_, err = ParsePublisherMap("0-2")
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ParsePublisherMap("300:2")
	assert.ErrorIs(t, err, ErrFormat)

	assert.Equal(t, "0:2,1:39", FormatPublisherMap([]int{2, 39}))
}

func TestDecodeGzip(t *testing.T) {
	t.Parallel()
	gz, err := Deflate(EncodeFormatA(baseUs, sampleRecordsA()))
	require.NoError(t, err)

	ticks, err := DecodeGzip(bytes.NewReader(gz))
	require.NoError(t, err)
	assert.Len(t, ticks, 3)

	_, err = DecodeGzip(bytes.NewReader([]byte("not gzip at all")))
	require.ErrorIs(t, err, ErrDecompression)
	var de *DecompressionError
	assert.True(t, errors.As(err, &de))
}
