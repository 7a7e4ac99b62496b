package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-replay/internal/codec"
)

func smallOptions() SyntheticOptions {
	opts := DefaultSyntheticOptions()
	opts.Samples = 50
	return opts
}

func TestSynthesizeDecodes(t *testing.T) {
	t.Parallel()
	gz, err := Synthesize(smallOptions())
	require.NoError(t, err)

	ticks, err := Decode(gz, nil)
	require.NoError(t, err)
	require.Len(t, ticks, 50)

	base := 1_763_128_800.0
	assert.InDelta(t, base, ticks[0].Timestamp, 1e-6)
	assert.InDelta(t, base+4.9, ticks[49].Timestamp, 1e-6)

	for i, tk := range ticks {
		require.NotNil(t, tk.Metadata, "tick %d", i)
		assert.Len(t, tk.Metadata.Exchanges, 3)
		assert.LessOrEqual(t, tk.Metadata.Bid, tk.Metadata.Ask)
		assert.InDelta(t, (tk.Metadata.Bid+tk.Metadata.Ask)/2, tk.Price, 1e-5)
		for _, ex := range tk.Metadata.Exchanges {
			assert.Contains(t, []int{2, 39, 40}, ex.PublisherID)
			assert.LessOrEqual(t, ex.BidPrice, tk.Metadata.Bid+1e-9)
			assert.GreaterOrEqual(t, ex.AskPrice, tk.Metadata.Ask-1e-9)
		}
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	t.Parallel()
	a, err := Synthesize(smallOptions())
	require.NoError(t, err)
	b, err := Synthesize(smallOptions())
	require.NoError(t, err)

	ta, err := Decode(a, nil)
	require.NoError(t, err)
	tb, err := Decode(b, nil)
	require.NoError(t, err)
	assert.Equal(t, ta, tb)
}

func TestSynthesizeRejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := Synthesize(SyntheticOptions{})
	assert.Error(t, err)
}

func TestLoadPlainAndGzip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	raw := codec.EncodeFormatA(1_000_000, []codec.RecordA{
		{DeltaUs: 0, Action: 'T', Side: 'N', Price: codec.ScalePrice(10), Size: 100},
		{DeltaUs: 500_000, Action: 'T', Side: 'N', Price: codec.ScalePrice(11), Size: 200},
	})
	plain := filepath.Join(dir, "s.bin")
	require.NoError(t, os.WriteFile(plain, raw, 0o600))

	gz, err := codec.Deflate(raw)
	require.NoError(t, err)
	packed := filepath.Join(dir, "s.bin.gz")
	require.NoError(t, os.WriteFile(packed, gz, 0o600))

	a, err := Load(plain, nil)
	require.NoError(t, err)
	b, err := Load(packed, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 2)
	assert.Equal(t, 11.0, a[1].Price)
	assert.InDelta(t, 1.5, a[1].Timestamp, 1e-9)

	_, err = Load(filepath.Join(dir, "missing.bin"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "bad.bin.gz")
	require.NoError(t, os.WriteFile(p, []byte{0x1f, 0x8b, 0, 1, 2}, 0o600))

	_, err := Load(p, nil)
	assert.ErrorIs(t, err, codec.ErrDecompression)
}
