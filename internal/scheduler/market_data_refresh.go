package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/modules/history"
	"github.com/rs/zerolog"
)

// SymbolLister lists the symbols held by the price store
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]history.SymbolInfo, error)
}

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// MarketDataRefreshJob announces the stored symbols as updated so that
// subscribers drop cached alignments and recompute their charts
type MarketDataRefreshJob struct {
	symbols SymbolLister
	events  EventEmitter
	timeout time.Duration
	log     zerolog.Logger
}

// NewMarketDataRefreshJob creates a new MarketDataRefreshJob
func NewMarketDataRefreshJob(symbols SymbolLister, emitter EventEmitter) *MarketDataRefreshJob {
	return &MarketDataRefreshJob{
		symbols: symbols,
		events:  emitter,
		timeout: 30 * time.Second,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *MarketDataRefreshJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *MarketDataRefreshJob) Name() string {
	return "market_data_refresh"
}

// Run emits MARKET_DATA_UPDATED for every stored symbol
func (j *MarketDataRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	infos, err := j.symbols.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list symbols: %w", err)
	}

	symbols := make([]string, 0, len(infos))
	rows := 0
	for _, info := range infos {
		symbols = append(symbols, info.Symbol)
		rows += info.Bars
	}

	if j.events != nil {
		j.events.Emit("scheduler", &events.MarketDataUpdatedData{Symbols: symbols, Rows: rows})
	}

	j.log.Info().
		Int("symbols", len(symbols)).
		Int("rows", rows).
		Msg("Market data refresh announced")
	return nil
}
