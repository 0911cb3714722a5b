// Package handlers provides HTTP handlers for composite chart operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/modules/composite"
	"github.com/aristath/sentinel-composite/internal/modules/expression"
	"github.com/rs/zerolog"
)

// Handler handles composite chart HTTP requests
type Handler struct {
	service *composite.Service
	log     zerolog.Logger
}

// NewHandler creates a new composite chart handler
func NewHandler(service *composite.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "composite").Logger(),
	}
}

// HandleListCharts handles GET /api/composite-charts
func (h *Handler) HandleListCharts(w http.ResponseWriter, r *http.Request) {
	charts := h.service.ListCharts()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"charts": charts,
			"count":  len(charts),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleCreateChart handles POST /api/composite-charts
func (h *Handler) HandleCreateChart(w http.ResponseWriter, r *http.Request) {
	var req composite.CreateChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.service.CreateChart(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err, "Failed to create chart")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{"id": id},
	})
}

// HandleGetChart handles GET /api/composite-charts/{id}
func (h *Handler) HandleGetChart(w http.ResponseWriter, r *http.Request, id string) {
	chart, ok := h.service.GetChart(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Chart not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"chart":       chart.ToRecord(),
			"data_points": len(chart.CalculatedData),
			"statistics":  chart.Statistics,
		},
	})
}

// HandleUpdateChart handles PUT /api/composite-charts/{id}
func (h *Handler) HandleUpdateChart(w http.ResponseWriter, r *http.Request, id string) {
	var update composite.ChartUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ok, err := h.service.UpdateChart(r.Context(), id, update)
	if err != nil {
		h.handleServiceError(w, err, "Failed to update chart")
		return
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, "Chart not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"id": id, "updated": update.Fields()},
	})
}

// HandleDeleteChart handles DELETE /api/composite-charts/{id}
func (h *Handler) HandleDeleteChart(w http.ResponseWriter, r *http.Request, id string) {
	if !h.service.DeleteChart(r.Context(), id) {
		h.writeError(w, http.StatusNotFound, "Chart not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetChartData handles GET /api/composite-charts/{id}/data
func (h *Handler) HandleGetChartData(w http.ResponseWriter, r *http.Request, id string) {
	start, err := parseOptionalDate(r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := parseOptionalDate(r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid end date, expected YYYY-MM-DD")
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		h.writeError(w, http.StatusBadRequest, "End date is before start date")
		return
	}

	payload := h.service.GetChartData(r.Context(), id, start, end)
	if payload == nil {
		if chart, ok := h.service.GetChart(id); ok && chart.Enabled {
			h.writeError(w, http.StatusUnprocessableEntity, "No data available for the requested range")
			return
		}
		h.writeError(w, http.StatusNotFound, "Chart not found or disabled")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": payload})
}

// HandleExportChart handles GET /api/composite-charts/{id}/export
func (h *Handler) HandleExportChart(w http.ResponseWriter, r *http.Request, id string) {
	record, err := h.service.ExportChart(id)
	if err != nil {
		h.handleServiceError(w, err, "Failed to export chart")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// HandleImportChart handles POST /api/composite-charts/import
func (h *Handler) HandleImportChart(w http.ResponseWriter, r *http.Request) {
	var record composite.ChartRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.service.ImportChart(r.Context(), record)
	if err != nil {
		h.handleServiceError(w, err, "Failed to import chart")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{"id": id},
	})
}

type validateRequest struct {
	Expression string                               `json:"expression"`
	Variables  map[string]domain.ExpressionVariable `json:"variables"`
}

// HandleValidateExpression handles POST /api/composite-charts/validate
func (h *Handler) HandleValidateExpression(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	parsed := expression.Parse(req.Expression)
	result := expression.Validate(req.Expression, domain.VariableNames(req.Variables))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"valid":             result.Valid,
			"error":             result.Error,
			"missing_variables": result.MissingVariables,
			"variables":         parsed.Variables,
			"functions":         parsed.Functions,
			"expression_type":   parsed.Type,
		},
	})
}

// HandleListFunctions handles GET /api/composite-charts/functions
func (h *Handler) HandleListFunctions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"functions": expression.FunctionNames()},
	})
}

// HandleRefresh handles POST /api/composite-charts/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed := h.service.RefreshAll(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"refreshed": refreshed},
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, msg string) {
	var verr *composite.ValidationError
	switch {
	case errors.Is(err, composite.ErrChartLimitReached):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             verr.Error(),
			"missing_variables": verr.MissingVariables,
		})
	case errors.Is(err, composite.ErrChartNotFound):
		h.writeError(w, http.StatusNotFound, "Chart not found")
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
