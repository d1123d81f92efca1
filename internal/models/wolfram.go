package models

import "time"

// VisualizationType classifies a Wolfram plot or image pod
type VisualizationType string

// Visualization types recognized by the pod parser
const (
	Viz3DPlot       VisualizationType = "3d_plot"
	VizContourPlot  VisualizationType = "contour_plot"
	VizSurfacePlot  VisualizationType = "surface_plot"
	VizTable        VisualizationType = "table"
	VizGraph        VisualizationType = "graph"
	VizGeometry     VisualizationType = "geometry"
	VizVectorField  VisualizationType = "vector_field"
	VizPolarPlot    VisualizationType = "polar_plot"
	VizGenericImage VisualizationType = "image"
)

// WolframStep is one step of a step-by-step solution
type WolframStep struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// WolframVisualization is a plot or image extracted from a result pod
type WolframVisualization struct {
	Type  VisualizationType `json:"type"`
	Title string            `json:"title"`
	URL   string            `json:"url"`
	Alt   string            `json:"alt,omitempty"`
}

// WolframResult is the parsed outcome of a Wolfram Alpha query
type WolframResult struct {
	Query          string                 `json:"query"`
	Result         string                 `json:"result"`
	Steps          []WolframStep          `json:"steps,omitempty"`
	Visualizations []WolframVisualization `json:"visualizations,omitempty"`
	FromCache      bool                   `json:"from_cache"`
}

// WolframVerification is the outcome of checking a student answer
// against an authoritative value
type WolframVerification struct {
	IsCorrect     bool    `json:"is_correct"`
	Expected      string  `json:"expected"`
	Actual        string  `json:"actual"`
	ExpectedValue float64 `json:"expected_value,omitempty"`
	ActualValue   float64 `json:"actual_value,omitempty"`
	Numeric       bool    `json:"numeric"`
}

// WolframCacheEntry is a cached query result stored in the database
type WolframCacheEntry struct {
	ID        int       `json:"id" db:"id"`
	CacheKey  string    `json:"cache_key" db:"cache_key"`
	Payload   string    `json:"payload" db:"payload"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the entry is past its TTL at the given time
func (e *WolframCacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
