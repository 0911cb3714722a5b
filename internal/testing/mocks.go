package testing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/events"
)

// MockEventEmitter records emitted events
type MockEventEmitter struct {
	mock.Mock
}

// Emit implements the EventEmitter interfaces
func (m *MockEventEmitter) Emit(module string, data events.EventData) {
	m.Called(module, data)
}

// MockSymbolDataSource is a mock domain.SymbolDataSource
type MockSymbolDataSource struct {
	mock.Mock
}

// GetOHLCVData implements domain.SymbolDataSource
func (m *MockSymbolDataSource) GetOHLCVData(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLCVPoint, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OHLCVPoint), args.Error(1)
}
