package composite

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/modules/expression"
	"github.com/aristath/sentinel-composite/pkg/formulas"
)

// ChartType is how a composite series is drawn
type ChartType string

const (
	ChartTypeLine       ChartType = "line"
	ChartTypeArea       ChartType = "area"
	ChartTypeHistogram  ChartType = "histogram"
	ChartTypeOscillator ChartType = "oscillator"
)

// ParseChartType validates a chart type; empty means line
func ParseChartType(s string) (ChartType, error) {
	switch ChartType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ChartTypeLine:
		return ChartTypeLine, nil
	case ChartTypeArea:
		return ChartTypeArea, nil
	case ChartTypeHistogram:
		return ChartTypeHistogram, nil
	case ChartTypeOscillator:
		return ChartTypeOscillator, nil
	}
	return "", invalidField(fmt.Sprintf("unknown chart type %q", s))
}

// DisplayLocation is where a composite series is placed relative to the main chart
type DisplayLocation string

const (
	DisplayMain    DisplayLocation = "main"
	DisplaySub     DisplayLocation = "sub"
	DisplayOverlay DisplayLocation = "overlay"
)

// ParseDisplayLocation validates a display location; empty means sub
func ParseDisplayLocation(s string) (DisplayLocation, error) {
	switch DisplayLocation(strings.ToLower(strings.TrimSpace(s))) {
	case "", DisplaySub:
		return DisplaySub, nil
	case DisplayMain:
		return DisplayMain, nil
	case DisplayOverlay:
		return DisplayOverlay, nil
	}
	return "", invalidField(fmt.Sprintf("unknown display location %q", s))
}

// LineStyle is the stroke pattern of a line series
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
	LineDotted LineStyle = "dotted"
)

var colorPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

// ChartStyle holds the display attributes of a chart
type ChartStyle struct {
	Color       string    `json:"color"`
	LineWidth   int       `json:"line_width"`
	LineStyle   LineStyle `json:"line_style"`
	FillOpacity float64   `json:"fill_opacity"`
	ShowMarkers bool      `json:"show_markers"`
	MarkerSize  int       `json:"marker_size"`
}

// DefaultChartStyle returns the style used when none is given
func DefaultChartStyle() ChartStyle {
	return ChartStyle{
		Color:       "#2962FF",
		LineWidth:   2,
		LineStyle:   LineSolid,
		FillOpacity: 0.1,
		ShowMarkers: false,
		MarkerSize:  4,
	}
}

// Validate checks the style attributes
func (s ChartStyle) Validate() error {
	if !colorPattern.MatchString(s.Color) {
		return invalidField(fmt.Sprintf("invalid color %q", s.Color))
	}
	if s.LineWidth < 1 || s.LineWidth > 10 {
		return invalidField(fmt.Sprintf("line width %d outside 1..10", s.LineWidth))
	}
	switch s.LineStyle {
	case LineSolid, LineDashed, LineDotted:
	default:
		return invalidField(fmt.Sprintf("unknown line style %q", s.LineStyle))
	}
	if s.FillOpacity < 0 || s.FillOpacity > 1 {
		return invalidField(fmt.Sprintf("fill opacity %v outside 0..1", s.FillOpacity))
	}
	if s.MarkerSize < 1 || s.MarkerSize > 20 {
		return invalidField(fmt.Sprintf("marker size %d outside 1..20", s.MarkerSize))
	}
	return nil
}

// DataPoint is one defined value of a computed chart
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CompositeChart is a named expression over bound symbols
type CompositeChart struct {
	ID              string
	Name            string
	Expression      string
	Variables       map[string]domain.ExpressionVariable
	ChartType       ChartType
	DisplayLocation DisplayLocation
	Style           ChartStyle
	Market          string
	Enabled         bool
	AutoUpdate      bool
	CreatedAt       time.Time
	LastUpdated     *time.Time

	// Result of the latest default-window computation
	CalculatedData []DataPoint
	Statistics     *formulas.Statistics
}

// clone returns a copy that shares no mutable state with c
func (c *CompositeChart) clone() *CompositeChart {
	out := *c
	out.Variables = make(map[string]domain.ExpressionVariable, len(c.Variables))
	for k, v := range c.Variables {
		out.Variables[k] = v
	}
	if c.LastUpdated != nil {
		t := *c.LastUpdated
		out.LastUpdated = &t
	}
	out.CalculatedData = append([]DataPoint(nil), c.CalculatedData...)
	if c.Statistics != nil {
		stats := *c.Statistics
		out.Statistics = &stats
	}
	return &out
}

// ChartRecord is the serializable definition of a chart, used for persistence,
// export and import
type ChartRecord struct {
	ID              string                               `json:"id"`
	Name            string                               `json:"name"`
	Expression      string                               `json:"expression"`
	Variables       map[string]domain.ExpressionVariable `json:"variables"`
	ChartType       ChartType                            `json:"chart_type"`
	DisplayLocation DisplayLocation                      `json:"display_location"`
	Style           ChartStyle                           `json:"style"`
	Market          string                               `json:"market,omitempty"`
	Enabled         bool                                 `json:"enabled"`
	AutoUpdate      bool                                 `json:"auto_update"`
	CreatedAt       string                               `json:"created_at"`
	LastUpdated     *string                              `json:"last_updated"`
}

// ToRecord converts the chart definition into a record. Computed data is not included.
func (c *CompositeChart) ToRecord() ChartRecord {
	var lastUpdated *string
	if c.LastUpdated != nil {
		s := c.LastUpdated.UTC().Format(time.RFC3339Nano)
		lastUpdated = &s
	}
	return ChartRecord{
		ID:              c.ID,
		Name:            c.Name,
		Expression:      c.Expression,
		Variables:       c.clone().Variables,
		ChartType:       c.ChartType,
		DisplayLocation: c.DisplayLocation,
		Style:           c.Style,
		Market:          c.Market,
		Enabled:         c.Enabled,
		AutoUpdate:      c.AutoUpdate,
		CreatedAt:       c.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastUpdated:     lastUpdated,
	}
}

// ChartFromRecord rebuilds a chart from a record, validating enums and timestamps
func ChartFromRecord(r ChartRecord) (*CompositeChart, error) {
	chartType, err := ParseChartType(string(r.ChartType))
	if err != nil {
		return nil, err
	}
	location, err := ParseDisplayLocation(string(r.DisplayLocation))
	if err != nil {
		return nil, err
	}
	variables, err := normalizeVariables(r.Variables)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, invalidField(fmt.Sprintf("invalid created_at %q", r.CreatedAt))
	}
	var lastUpdated *time.Time
	if r.LastUpdated != nil {
		t, err := time.Parse(time.RFC3339Nano, *r.LastUpdated)
		if err != nil {
			return nil, invalidField(fmt.Sprintf("invalid last_updated %q", *r.LastUpdated))
		}
		t = t.UTC()
		lastUpdated = &t
	}

	return &CompositeChart{
		ID:              r.ID,
		Name:            r.Name,
		Expression:      r.Expression,
		Variables:       variables,
		ChartType:       chartType,
		DisplayLocation: location,
		Style:           r.Style,
		Market:          r.Market,
		Enabled:         r.Enabled,
		AutoUpdate:      r.AutoUpdate,
		CreatedAt:       createdAt.UTC(),
		LastUpdated:     lastUpdated,
	}, nil
}

// normalizeVariables fills each variable's name from its key and validates the price type
func normalizeVariables(vars map[string]domain.ExpressionVariable) (map[string]domain.ExpressionVariable, error) {
	out := make(map[string]domain.ExpressionVariable, len(vars))
	for name, v := range vars {
		if v.Name == "" {
			v.Name = name
		}
		if v.Name != name {
			return nil, invalidField(fmt.Sprintf("variable key %q does not match name %q", name, v.Name))
		}
		if strings.TrimSpace(v.Symbol) == "" {
			return nil, invalidField(fmt.Sprintf("variable %q has no symbol", name))
		}
		pt, err := domain.ParsePriceType(string(v.PriceType))
		if err != nil {
			return nil, invalidField(err.Error())
		}
		v.PriceType = pt
		out[name] = v
	}
	return out, nil
}

// CreateChartRequest describes a new chart. Nil Style uses DefaultChartStyle;
// nil Enabled and AutoUpdate default to true.
type CreateChartRequest struct {
	Name            string                               `json:"name"`
	Expression      string                               `json:"expression"`
	Variables       map[string]domain.ExpressionVariable `json:"variables"`
	ChartType       ChartType                            `json:"chart_type"`
	DisplayLocation DisplayLocation                      `json:"display_location"`
	Style           *ChartStyle                          `json:"style,omitempty"`
	Market          string                               `json:"market,omitempty"`
	Enabled         *bool                                `json:"enabled,omitempty"`
	AutoUpdate      *bool                                `json:"auto_update,omitempty"`
}

// ChartUpdate is a partial update; nil fields are left unchanged
type ChartUpdate struct {
	Name            *string                              `json:"name,omitempty"`
	Expression      *string                              `json:"expression,omitempty"`
	Variables       map[string]domain.ExpressionVariable `json:"variables,omitempty"`
	ChartType       *ChartType                           `json:"chart_type,omitempty"`
	DisplayLocation *DisplayLocation                     `json:"display_location,omitempty"`
	Style           *ChartStyle                          `json:"style,omitempty"`
	Market          *string                              `json:"market,omitempty"`
	Enabled         *bool                                `json:"enabled,omitempty"`
	AutoUpdate      *bool                                `json:"auto_update,omitempty"`
}

// Fields returns the JSON names of the fields set in u
func (u ChartUpdate) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(u.Name != nil, "name")
	add(u.Expression != nil, "expression")
	add(u.Variables != nil, "variables")
	add(u.ChartType != nil, "chart_type")
	add(u.DisplayLocation != nil, "display_location")
	add(u.Style != nil, "style")
	add(u.Market != nil, "market")
	add(u.Enabled != nil, "enabled")
	add(u.AutoUpdate != nil, "auto_update")
	return fields
}

// ChartPayload is the computed data of a chart over a date range.
// Data omits undefined points; Statistics is nil when no point is defined.
type ChartPayload struct {
	ChartID         string                    `json:"chart_id"`
	Name            string                    `json:"name"`
	Expression      string                    `json:"expression"`
	ChartType       ChartType                 `json:"chart_type"`
	DisplayLocation DisplayLocation           `json:"display_location"`
	Style           ChartStyle                `json:"style"`
	StartDate       string                    `json:"start_date"`
	EndDate         string                    `json:"end_date"`
	Data            []DataPoint               `json:"data"`
	Statistics      *formulas.Statistics      `json:"statistics"`
	Metadata        expression.ResultMetadata `json:"metadata"`
	Success         bool                      `json:"success"`
	Error           string                    `json:"error,omitempty"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// ChartSummary is the listing view of a chart
type ChartSummary struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Expression      string          `json:"expression"`
	ChartType       ChartType       `json:"chart_type"`
	DisplayLocation DisplayLocation `json:"display_location"`
	Enabled         bool            `json:"enabled"`
	AutoUpdate      bool            `json:"auto_update"`
	Variables       int             `json:"variable_count"`
	DataPoints      int             `json:"data_points"`
	CreatedAt       time.Time       `json:"created_at"`
	LastUpdated     *time.Time      `json:"last_updated"`
}
