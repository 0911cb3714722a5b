package composite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists chart definitions in the charts database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new chart repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "composite_charts").Logger(),
	}
}

// Save inserts or replaces the definition of chart
func (r *Repository) Save(ctx context.Context, chart *CompositeChart) error {
	variables, err := json.Marshal(chart.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	style, err := json.Marshal(chart.Style)
	if err != nil {
		return fmt.Errorf("failed to encode style: %w", err)
	}

	var lastUpdated interface{}
	if chart.LastUpdated != nil {
		lastUpdated = chart.LastUpdated.UnixNano()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO composite_charts
			(id, name, expression, variables, chart_type, display_location, style,
			 market, enabled, auto_update, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			expression = excluded.expression,
			variables = excluded.variables,
			chart_type = excluded.chart_type,
			display_location = excluded.display_location,
			style = excluded.style,
			market = excluded.market,
			enabled = excluded.enabled,
			auto_update = excluded.auto_update,
			last_updated = excluded.last_updated
	`,
		chart.ID, chart.Name, chart.Expression, string(variables),
		string(chart.ChartType), string(chart.DisplayLocation), string(style),
		chart.Market, boolToInt(chart.Enabled), boolToInt(chart.AutoUpdate),
		chart.CreatedAt.UnixNano(), lastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save chart %s: %w", chart.ID, err)
	}
	return nil
}

// Delete removes a chart definition. Deleting an unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM composite_charts WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete chart %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every stored chart ordered by creation time.
// Rows that cannot be decoded are logged and skipped.
func (r *Repository) LoadAll(ctx context.Context) ([]*CompositeChart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, expression, variables, chart_type, display_location, style,
		       market, enabled, auto_update, created_at, last_updated
		FROM composite_charts
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query charts: %w", err)
	}
	defer rows.Close()

	charts := make([]*CompositeChart, 0)
	for rows.Next() {
		var (
			c                   CompositeChart
			variables, style    string
			chartType, location string
			enabled, autoUpdate int
			createdAt           int64
			lastUpdated         sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Expression, &variables, &chartType, &location, &style,
			&c.Market, &enabled, &autoUpdate, &createdAt, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan chart: %w", err)
		}

		if err := json.Unmarshal([]byte(variables), &c.Variables); err != nil {
			r.log.Warn().Err(err).Str("chart_id", c.ID).Msg("Skipping chart with undecodable variables")
			continue
		}
		if c.Variables == nil {
			c.Variables = map[string]domain.ExpressionVariable{}
		}
		if err := json.Unmarshal([]byte(style), &c.Style); err != nil {
			r.log.Warn().Err(err).Str("chart_id", c.ID).Msg("Skipping chart with undecodable style")
			continue
		}

		c.ChartType = ChartType(chartType)
		c.DisplayLocation = DisplayLocation(location)
		c.Enabled = enabled != 0
		c.AutoUpdate = autoUpdate != 0
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		if lastUpdated.Valid {
			t := time.Unix(0, lastUpdated.Int64).UTC()
			c.LastUpdated = &t
		}
		charts = append(charts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate charts: %w", err)
	}
	return charts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
