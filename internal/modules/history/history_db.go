// Package history stores daily OHLCV bars in sqlite and serves them as a symbol data source.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/rs/zerolog"
)

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db     *sql.DB
	events EventEmitter // optional
	log    zerolog.Logger
}

// NewHistoryDB creates a new history database accessor. emitter may be nil.
func NewHistoryDB(db *sql.DB, emitter EventEmitter, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:     db,
		events: emitter,
		log:    log.With().Str("component", "history_db").Logger(),
	}
}

// GetOHLCVData returns the bars of symbol within [start, end] ordered by date.
// An unknown symbol yields an empty slice.
func (h *HistoryDB) GetOHLCVData(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLCVPoint, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, domain.NormalizeDate(start).Unix(), domain.NormalizeDate(end).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	points := make([]domain.OHLCVPoint, 0)
	for rows.Next() {
		var p domain.OHLCVPoint
		var dateUnix int64
		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Timestamp = time.Unix(dateUnix, 0).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily prices: %w", err)
	}

	return points, nil
}

// UpsertPrices inserts or replaces bars for symbol and announces the change.
// Returns the number of rows written.
func (h *HistoryDB) UpsertPrices(ctx context.Context, symbol string, points []domain.OHLCVPoint) (int, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	if len(points) == 0 {
		return 0, nil
	}

	for _, p := range points {
		if p.Volume < 0 {
			return 0, fmt.Errorf("negative volume for %s on %s", symbol, p.Timestamp.Format(domain.DateLayout))
		}
	}

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_prices
			(symbol, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx,
				symbol,
				domain.NormalizeDate(p.Timestamp).Unix(),
				p.Open, p.High, p.Low, p.Close, p.Volume,
			); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", p.Timestamp.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Info().
		Str("symbol", symbol).
		Int("count", len(points)).
		Msg("Upserted daily prices")

	if h.events != nil {
		h.events.Emit("history", &events.MarketDataUpdatedData{
			Symbols: []string{symbol},
			Rows:    len(points),
		})
	}

	return len(points), nil
}

// SymbolInfo summarizes the stored history of one symbol
type SymbolInfo struct {
	Symbol    string    `json:"symbol"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
	Bars      int       `json:"bars"`
}

// ListSymbols returns every stored symbol with its date range, sorted by symbol
func (h *HistoryDB) ListSymbols(ctx context.Context) ([]SymbolInfo, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT symbol, MIN(date), MAX(date), COUNT(*)
		FROM daily_prices
		GROUP BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	infos := make([]SymbolInfo, 0)
	for rows.Next() {
		var info SymbolInfo
		var first, last int64
		if err := rows.Scan(&info.Symbol, &first, &last, &info.Bars); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		info.FirstDate = time.Unix(first, 0).UTC()
		info.LastDate = time.Unix(last, 0).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symbols: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Symbol < infos[j].Symbol })
	return infos, nil
}

// DeleteSymbol removes all bars of symbol
func (h *HistoryDB) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM daily_prices WHERE symbol = ?", symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices for %s: %w", symbol, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 && h.events != nil {
		h.events.Emit("history", &events.MarketDataUpdatedData{Symbols: []string{symbol}})
	}
	return n, nil
}
