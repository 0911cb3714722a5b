package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all composite chart routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/composite-charts", func(r chi.Router) {
		r.Get("/", h.HandleListCharts)
		r.Post("/", h.HandleCreateChart)

		r.Post("/validate", h.HandleValidateExpression)
		r.Post("/import", h.HandleImportChart)
		r.Post("/refresh", h.HandleRefresh)
		r.Get("/functions", h.HandleListFunctions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetChart(w, r, chi.URLParam(r, "id"))
			})
			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleUpdateChart(w, r, chi.URLParam(r, "id"))
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleDeleteChart(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/data", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetChartData(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/export", func(w http.ResponseWriter, r *http.Request) {
				h.HandleExportChart(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
