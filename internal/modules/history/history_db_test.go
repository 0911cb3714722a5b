package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) Emit(module string, data events.EventData) {
	m.Called(module, data)
}

func setupHistoryDB(t *testing.T, emitter EventEmitter) *HistoryDB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
		Name: database.NameHistory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewHistoryDB(db.Conn(), emitter, zerolog.Nop())
}

func bar(y int, m time.Month, d int, close float64) domain.OHLCVPoint {
	return domain.OHLCVPoint{
		Timestamp: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    1000,
	}
}

func TestUpsertAndGetOHLCVData(t *testing.T) {
	ctx := context.Background()
	h := setupHistoryDB(t, nil)

	n, err := h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{
		bar(2024, 1, 3, 12),
		bar(2024, 1, 1, 10),
		bar(2024, 1, 2, 11),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	points, err := h.GetOHLCVData(ctx, "USD",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 11.0, points[0].Close)
	assert.Equal(t, 12.0, points[1].Close)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), points[0].Timestamp)
	assert.Equal(t, 10.0, points[0].Open)
	assert.Equal(t, int64(1000), points[0].Volume)
}

func TestUpsertPrices_ReplacesExistingBar(t *testing.T) {
	ctx := context.Background()
	h := setupHistoryDB(t, nil)

	_, err := h.UpsertPrices(ctx, "GOLD", []domain.OHLCVPoint{bar(2024, 1, 1, 10)})
	require.NoError(t, err)
	_, err = h.UpsertPrices(ctx, "GOLD", []domain.OHLCVPoint{bar(2024, 1, 1, 20)})
	require.NoError(t, err)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := h.GetOHLCVData(ctx, "GOLD", day, day)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 20.0, points[0].Close)
}

func TestUpsertPrices_NormalizesClock(t *testing.T) {
	ctx := context.Background()
	h := setupHistoryDB(t, nil)

	p := bar(2024, 1, 1, 10)
	p.Timestamp = p.Timestamp.Add(15 * time.Hour)
	_, err := h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{p})
	require.NoError(t, err)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := h.GetOHLCVData(ctx, "USD", day, day)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, day, points[0].Timestamp)
}

func TestUpsertPrices_EmitsMarketDataUpdated(t *testing.T) {
	ctx := context.Background()
	emitter := &mockEmitter{}
	emitter.On("Emit", "history", mock.MatchedBy(func(d events.EventData) bool {
		data, ok := d.(*events.MarketDataUpdatedData)
		return ok && data.Rows == 2 && len(data.Symbols) == 1 && data.Symbols[0] == "USD"
	})).Once()

	h := setupHistoryDB(t, emitter)
	_, err := h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{bar(2024, 1, 1, 1), bar(2024, 1, 2, 2)})
	require.NoError(t, err)

	emitter.AssertExpectations(t)
}

func TestUpsertPrices_Validation(t *testing.T) {
	ctx := context.Background()
	emitter := &mockEmitter{}
	h := setupHistoryDB(t, emitter)

	_, err := h.UpsertPrices(ctx, " ", []domain.OHLCVPoint{bar(2024, 1, 1, 1)})
	assert.Error(t, err)

	negative := bar(2024, 1, 1, 1)
	negative.Volume = -5
	_, err = h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{negative})
	assert.Error(t, err)

	n, err := h.UpsertPrices(ctx, "USD", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	emitter.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestGetOHLCVData_UnknownSymbolIsEmpty(t *testing.T) {
	h := setupHistoryDB(t, nil)
	points, err := h.GetOHLCVData(context.Background(), "NOPE",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestGetOHLCVData_Year1403(t *testing.T) {
	ctx := context.Background()
	h := setupHistoryDB(t, nil)

	_, err := h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{bar(1403, 1, 1, 500), bar(1403, 1, 2, 510)})
	require.NoError(t, err)

	points, err := h.GetOHLCVData(ctx, "USD",
		time.Date(1403, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1403, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1403, points[0].Timestamp.Year())
}

func TestListAndDeleteSymbols(t *testing.T) {
	ctx := context.Background()
	h := setupHistoryDB(t, nil)

	_, err := h.UpsertPrices(ctx, "USD", []domain.OHLCVPoint{bar(2024, 1, 1, 1), bar(2024, 1, 5, 2)})
	require.NoError(t, err)
	_, err = h.UpsertPrices(ctx, "GOLD", []domain.OHLCVPoint{bar(2024, 2, 1, 3)})
	require.NoError(t, err)

	infos, err := h.ListSymbols(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "GOLD", infos[0].Symbol)
	assert.Equal(t, "USD", infos[1].Symbol)
	assert.Equal(t, 2, infos[1].Bars)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), infos[1].LastDate)

	n, err := h.DeleteSymbol(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	infos, err = h.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
