package valueobject

import "strings"

// EventCategory classifies an ingested event.
type EventCategory string

const (
	CategoryProtest       EventCategory = "protest"
	CategoryCyber         EventCategory = "cyber"
	CategoryKinetic       EventCategory = "kinetic"
	CategoryEconomic      EventCategory = "economic"
	CategoryEnvironmental EventCategory = "environmental"
	CategoryPolitical     EventCategory = "political"
	CategoryUnknown       EventCategory = "unknown"
)

// ParseEventCategory maps free text to a category, defaulting to unknown.
func ParseEventCategory(s string) EventCategory {
	switch c := EventCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryProtest, CategoryCyber, CategoryKinetic, CategoryEconomic,
		CategoryEnvironmental, CategoryPolitical:
		return c
	default:
		return CategoryUnknown
	}
}

// UnmarshalText decodes JSON and YAML category strings. Unrecognised values
// become unknown instead of failing the whole event.
func (c *EventCategory) UnmarshalText(text []byte) error {
	*c = ParseEventCategory(string(text))
	return nil
}
