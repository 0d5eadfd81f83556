package analytics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSegment reports a segment filter that could not be parsed
var ErrInvalidSegment = errors.New("invalid segment format")

// Segment narrows a DAU query to events matching one attribute. Either a
// column filter (event_type:purchase) or a JSONB property filter
// (properties.country=UA).
type Segment struct {
	// Column is the event column to filter on, empty for property filters
	Column string
	// Property is the JSONB key within properties, empty for column filters
	Property string
	// Value events must carry for the attribute
	Value string
}

// segmentColumns are the event columns a segment may reference. Keeping an
// allow list means segment keys never reach SQL as identifiers unchecked.
var segmentColumns = map[string]bool{
	"event_type": true,
	"user_id":    true,
}

// ParseSegment parses "key:value" or "key=value" into a Segment.
func ParseSegment(raw string) (*Segment, error) {
	var key, value string
	switch {
	case strings.Contains(raw, ":"):
		parts := strings.SplitN(raw, ":", 2)
		key, value = parts[0], parts[1]
	case strings.Contains(raw, "="):
		parts := strings.SplitN(raw, "=", 2)
		key, value = parts[0], parts[1]
	default:
		return nil, ErrInvalidSegment
	}

	if key == "" || value == "" {
		return nil, ErrInvalidSegment
	}

	if prop, ok := strings.CutPrefix(key, "properties."); ok {
		if prop == "" {
			return nil, ErrInvalidSegment
		}
		return &Segment{Property: prop, Value: value}, nil
	}

	if !segmentColumns[key] {
		return nil, ErrInvalidSegment
	}
	return &Segment{Column: key, Value: value}, nil
}

// whereClause renders the segment as a parameterized SQL predicate. argPos is
// the first placeholder number available; the property key, when present, is
// passed as a parameter rather than spliced into the query.
func (s *Segment) whereClause(argPos int) (string, []interface{}) {
	if s.Property != "" {
		return fmt.Sprintf("properties->>$%d = $%d", argPos, argPos+1), []interface{}{s.Property, s.Value}
	}
	return fmt.Sprintf("%s::text = $%d", s.Column, argPos), []interface{}{s.Value}
}
