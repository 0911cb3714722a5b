package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/aristath/sentinel-composite/internal/modules/calendar"
	"github.com/aristath/sentinel-composite/internal/modules/history"
	"github.com/aristath/sentinel-composite/internal/utils"
)

// MarketHandlers serves the calendar, alignment and price history endpoints
type MarketHandlers struct {
	calendar  *calendar.Calendar
	alignment *alignment.Service
	history   *history.HistoryDB
	log       zerolog.Logger
}

// NewMarketHandlers creates market handlers. Any dependency may be nil, which
// leaves its routes unregistered.
func NewMarketHandlers(
	cal *calendar.Calendar,
	align *alignment.Service,
	hist *history.HistoryDB,
	log zerolog.Logger,
) *MarketHandlers {
	return &MarketHandlers{
		calendar:  cal,
		alignment: align,
		history:   hist,
		log:       log.With().Str("handler", "market").Logger(),
	}
}

// RegisterRoutes registers the market routes
func (h *MarketHandlers) RegisterRoutes(r chi.Router) {
	if h.calendar != nil {
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/markets", h.HandleListMarkets)
			r.Get("/trading-days", h.HandleTradingDays)
			r.Get("/next-trading-day", h.HandleNextTradingDay)
		})
	}

	if h.alignment != nil {
		r.Route("/alignment", func(r chi.Router) {
			r.Get("/quality", h.HandleDataQuality)
			r.Get("/gaps", h.HandleDataGaps)
			r.Post("/cache/clear", h.HandleClearCache)
		})
	}

	if h.history != nil {
		r.Route("/history", func(r chi.Router) {
			r.Get("/symbols", h.HandleListSymbols)
			r.Route("/{symbol}", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					h.HandleGetPrices(w, r, chi.URLParam(r, "symbol"))
				})
				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					h.HandleUpsertPrices(w, r, chi.URLParam(r, "symbol"))
				})
				r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
					h.HandleDeleteSymbol(w, r, chi.URLParam(r, "symbol"))
				})
			})
		})
	}
}

// HandleListMarkets handles GET /api/calendar/markets
func (h *MarketHandlers) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"markets": h.calendar.Markets()},
	}, h.log)
}

// HandleTradingDays handles GET /api/calendar/trading-days?market=&start=&end=
func (h *MarketHandlers) HandleTradingDays(w http.ResponseWriter, r *http.Request) {
	market, ok := h.market(w, r)
	if !ok {
		return
	}
	start, end, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	days := h.calendar.GetTradingDaysBetween(start, end, market)
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Format(domain.DateLayout)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"market":       market,
			"start_date":   start.Format(domain.DateLayout),
			"end_date":     end.Format(domain.DateLayout),
			"trading_days": dates,
			"count":        len(dates),
		},
	}, h.log)
}

// HandleNextTradingDay handles GET /api/calendar/next-trading-day?market=&date=
func (h *MarketHandlers) HandleNextTradingDay(w http.ResponseWriter, r *http.Request) {
	market, ok := h.market(w, r)
	if !ok {
		return
	}
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", h.log)
		return
	}

	next := h.calendar.GetNextTradingDay(date, market)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"market":           market,
			"date":             date.Format(domain.DateLayout),
			"next_trading_day": next.Format(domain.DateLayout),
		},
	}, h.log)
}

// HandleDataQuality handles GET /api/alignment/quality?symbols=A,B&start=&end=&market=
func (h *MarketHandlers) HandleDataQuality(w http.ResponseWriter, r *http.Request) {
	symbols, ok := h.symbols(w, r)
	if !ok {
		return
	}
	start, end, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	report := h.alignment.GetDataQualityReport(r.Context(), symbols, start, end, marketParam(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": report}, h.log)
}

// HandleDataGaps handles GET /api/alignment/gaps?symbols=A,B&start=&end=&market=
func (h *MarketHandlers) HandleDataGaps(w http.ResponseWriter, r *http.Request) {
	symbols, ok := h.symbols(w, r)
	if !ok {
		return
	}
	start, end, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	gaps := h.alignment.DetectDataGaps(r.Context(), symbols, start, end, marketParam(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"gaps":  gaps,
			"count": len(gaps),
		},
	}, h.log)
}

// HandleClearCache handles POST /api/alignment/cache/clear
func (h *MarketHandlers) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.alignment.ClearCache(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear alignment cache")
		writeError(w, http.StatusInternalServerError, "Failed to clear alignment cache", h.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"cleared": true},
	}, h.log)
}

// HandleListSymbols handles GET /api/history/symbols
func (h *MarketHandlers) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.history.ListSymbols(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		writeError(w, http.StatusInternalServerError, "Failed to list symbols", h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbols": symbols,
			"count":   len(symbols),
		},
	}, h.log)
}

// HandleGetPrices handles GET /api/history/{symbol}?start=&end=
func (h *MarketHandlers) HandleGetPrices(w http.ResponseWriter, r *http.Request, symbol string) {
	start, end, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	points, err := h.history.GetOHLCVData(r.Context(), symbol, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch prices")
		writeError(w, http.StatusInternalServerError, "Failed to fetch prices", h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"prices": points,
			"count":  len(points),
		},
	}, h.log)
}

type upsertPricesRequest struct {
	Prices []domain.OHLCVPoint `json:"prices"`
}

// HandleUpsertPrices handles POST /api/history/{symbol}
func (h *MarketHandlers) HandleUpsertPrices(w http.ResponseWriter, r *http.Request, symbol string) {
	var req upsertPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	n, err := h.history.UpsertPrices(r.Context(), symbol, req.Prices)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":  symbol,
			"written": n,
		},
	}, h.log)
}

// HandleDeleteSymbol handles DELETE /api/history/{symbol}
func (h *MarketHandlers) HandleDeleteSymbol(w http.ResponseWriter, r *http.Request, symbol string) {
	n, err := h.history.DeleteSymbol(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to delete symbol")
		writeError(w, http.StatusInternalServerError, "Failed to delete symbol", h.log)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Symbol not found", h.log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// market resolves the market query parameter, defaulting to GLOBAL
func (h *MarketHandlers) market(w http.ResponseWriter, r *http.Request) (string, bool) {
	market := marketParam(r)
	if !h.calendar.HasMarket(market) {
		writeError(w, http.StatusBadRequest, "Unknown market: "+market, h.log)
		return "", false
	}
	return market, true
}

func marketParam(r *http.Request) string {
	market := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("market")))
	if market == "" {
		return calendar.MarketGlobal
	}
	return market
}

// symbols parses the comma separated symbols query parameter
func (h *MarketHandlers) symbols(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	symbols := utils.ParseSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "At least one symbol is required", h.log)
		return nil, false
	}
	return symbols, true
}

// dateRange parses start and end. Both are required and end must not precede start.
func (h *MarketHandlers) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, err := domain.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date, expected YYYY-MM-DD", h.log)
		return time.Time{}, time.Time{}, false
	}
	end, err := domain.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date, expected YYYY-MM-DD", h.log)
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "End date is before start date", h.log)
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
