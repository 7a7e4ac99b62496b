package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-replay/internal/model"
)

func TestUpdateSingleExchange(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.Update(1, []model.ExchangeSnapshot{{PublisherID: 1, BidPrice: 10, BidSize: 100, AskPrice: 10.5, AskSize: 50}})

	book := v.OrderBook(0)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 10.0, book.Bids[0].Price)
	assert.Equal(t, 100.0, book.Bids[0].Size)
	assert.Equal(t, 10.5, book.Asks[0].Price)
	assert.Equal(t, 50.0, book.Asks[0].Size)
	assert.Equal(t, 1.0, book.Bids[0].LastUpdateTime)
}

func TestOrderBookSortingAndFilters(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.Update(1, []model.ExchangeSnapshot{
		{PublisherID: 1, BidPrice: 10.00, BidSize: 100, AskPrice: 10.30, AskSize: 10},
		{PublisherID: 2, BidPrice: 10.10, BidSize: 5, AskPrice: 10.20, AskSize: 300},
		{PublisherID: 3, BidPrice: 0, BidSize: 500, AskPrice: 10.25, AskSize: 200},
		{PublisherID: 4, BidPrice: 10.05, BidSize: 200, AskPrice: 0, AskSize: 0},
	})

	book := v.OrderBook(0)
	require.Len(t, book.Bids, 3, "zero bid price excluded")
	assert.Equal(t, []int{2, 4, 1}, []int{book.Bids[0].PublisherID, book.Bids[1].PublisherID, book.Bids[2].PublisherID})
	require.Len(t, book.Asks, 3, "zero ask price excluded")
	assert.Equal(t, []int{2, 3, 1}, []int{book.Asks[0].PublisherID, book.Asks[1].PublisherID, book.Asks[2].PublisherID})

	filtered := v.OrderBook(50)
	require.Len(t, filtered.Bids, 2)
	assert.Equal(t, 4, filtered.Bids[0].PublisherID)
	require.Len(t, filtered.Asks, 2)
	assert.Equal(t, 2, filtered.Asks[0].PublisherID)

	best, ok := v.BestBid()
	require.True(t, ok)
	assert.Equal(t, 10.10, best.Price)
	bestAsk, ok := v.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 10.20, bestAsk.Price)
}

func TestUpdateLastWriteWins(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.Update(1, []model.ExchangeSnapshot{{PublisherID: 7, BidPrice: 10, BidSize: 100, AskPrice: 11, AskSize: 100}})
	v.Update(2, []model.ExchangeSnapshot{{PublisherID: 7, BidPrice: 9.5, BidSize: 0, AskPrice: 0, AskSize: 0}})

	entries := v.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{PublisherID: 7, BidPrice: 9.5, LastUpdateTime: 2}, entries[0], "no merge of partial fields")

	v.Update(3, nil)
	assert.Equal(t, 2.0, v.Entries()[0].LastUpdateTime, "empty update is a no-op")
}

func TestEntriesNeverExpire(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.Update(1, []model.ExchangeSnapshot{{PublisherID: 1, BidPrice: 10, BidSize: 1}})
	v.Update(100_000, []model.ExchangeSnapshot{{PublisherID: 2, BidPrice: 11, BidSize: 1}})

	assert.Equal(t, 2, v.Len())
	v.Clear()
	assert.Zero(t, v.Len())
	assert.Empty(t, v.OrderBook(0).Bids)
	_, ok := v.BestBid()
	assert.False(t, ok)
}

func TestAggregatedOrderBook(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.Update(1, []model.ExchangeSnapshot{
		{PublisherID: 1, BidPrice: 10.001, BidSize: 100, AskPrice: 10.204, AskSize: 10},
		{PublisherID: 2, BidPrice: 10.004, BidSize: 50.5, AskPrice: 10.196, AskSize: 20},
		{PublisherID: 3, BidPrice: 9.99, BidSize: 25, AskPrice: 10.30, AskSize: 5},
	})

	agg := v.AggregatedOrderBook(0, DefaultPriceDecimals)
	require.Len(t, agg.Bids, 2)
	assert.Equal(t, 10.0, agg.Bids[0].Price)
	assert.Equal(t, 150.5, agg.Bids[0].Size)
	assert.Equal(t, []int{1, 2}, agg.Bids[0].Publishers)
	assert.Equal(t, 9.99, agg.Bids[1].Price)

	require.Len(t, agg.Asks, 2)
	assert.Equal(t, 10.2, agg.Asks[0].Price)
	assert.Equal(t, 30.0, agg.Asks[0].Size)
	assert.Equal(t, 10.3, agg.Asks[1].Price)

	filtered := v.AggregatedOrderBook(30, DefaultPriceDecimals)
	require.Len(t, filtered.Bids, 1)
	assert.Equal(t, 150.5, filtered.Bids[0].Size)
	assert.Empty(t, filtered.Asks)
}

func TestApplyTick(t *testing.T) {
	t.Parallel()
	v := NewView(nil)
	v.ApplyTick(model.Tick{Timestamp: 5, Price: 10})
	assert.Zero(t, v.Len(), "tick without metadata is ignored")

	v.ApplyTick(model.Tick{Timestamp: 6, Metadata: &model.TickMetadata{
		Exchanges: []model.ExchangeSnapshot{{PublisherID: 2, BidPrice: 1, BidSize: 1}},
	}})
	require.Equal(t, 1, v.Len())
	assert.Equal(t, 6.0, v.Entries()[0].LastUpdateTime)
}
