package model

import (
	"time"

	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// Location is the geocoded position of an event.
type Location struct {
	Country string  `json:"country,omitempty" yaml:"country,omitempty"`
	Region  string  `json:"region,omitempty" yaml:"region,omitempty"`
	City    string  `json:"city,omitempty" yaml:"city,omitempty"`
	Lat     float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Event is a normalized, enriched record supplied by the ingestion pipeline.
type Event struct {
	PublishedAt    time.Time                 `json:"published_at" yaml:"published_at" validate:"required"`
	Location       *Location                 `json:"location,omitempty" yaml:"location,omitempty"`
	SentimentScore *float64                  `json:"sentiment_score,omitempty" yaml:"sentiment_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Severity       valueobject.Severity      `json:"severity" yaml:"severity"`
	ID             string                    `json:"id" yaml:"id" validate:"required"`
	Title          string                    `json:"title" yaml:"title" validate:"required"`
	Description    string                    `json:"description" yaml:"description"`
	Source         string                    `json:"source" yaml:"source"`
	SourceURL      string                    `json:"source_url,omitempty" yaml:"source_url,omitempty" validate:"omitempty,url"`
	Category       valueobject.EventCategory `json:"category" yaml:"category"`
	Tags           []string                  `json:"tags" yaml:"tags"`
	Embedding      []float64                 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Confidence     float64                   `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
}

// Bounds is a latitude/longitude bounding box in degrees.
type Bounds struct {
	North float64 `json:"north" yaml:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" yaml:"south" validate:"gte=-90,lte=90,ltefield=North"`
	East  float64 `json:"east" yaml:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" yaml:"west" validate:"gte=-180,lte=180"`
}

// Port is a named coordinate used by the proximity factor.
type Port struct {
	Name string  `json:"name,omitempty" yaml:"name,omitempty"`
	Lat  float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}
