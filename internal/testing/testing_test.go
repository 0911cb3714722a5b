package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-composite/internal/database"
)

func TestNewTestDB(t *testing.T) {
	db := NewTestDB(t, database.NameHistory)

	var count int
	err := db.Conn().QueryRow("SELECT COUNT(*) FROM daily_prices").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDailyBars(t *testing.T) {
	bars := DailyBars(Date(2024, time.February, 28), 1, 2, 3)

	require.Len(t, bars, 3)
	assert.Equal(t, Date(2024, time.February, 29), bars[1].Timestamp)
	assert.Equal(t, Date(2024, time.March, 1), bars[2].Timestamp)
	assert.Equal(t, 3.0, bars[2].Close)
}

func TestMockSymbolDataSource(t *testing.T) {
	source := new(MockSymbolDataSource)
	source.On("GetOHLCVData", mock.Anything, "USD", mock.Anything, mock.Anything).
		Return(DailyBars(Date(2024, time.January, 1), 10), nil)

	points, err := source.GetOHLCVData(context.Background(), "USD", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 1)
	source.AssertExpectations(t)
}
