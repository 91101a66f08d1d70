package output

import (
	"fmt"
	"io"
	"os"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// EventFormatter writes enriched events to its writer, one record per call
type EventFormatter interface {
	Print(ev *domain.EnrichedEvent) error
}

// Ensure our formatters implement the interface
var (
	_ EventFormatter = (*HumanFormatter)(nil)
	_ EventFormatter = (*JSONFormatter)(nil)
	_ EventFormatter = (*YAMLFormatter)(nil)
)

// NewEventFormatter creates a formatter for the given format writing to w (stdout when nil)
func NewEventFormatter(format string, w io.Writer) (EventFormatter, error) {
	if w == nil {
		w = os.Stdout
	}

	switch ParseFormat(format) {
	case "json":
		return NewJSONFormatter(w, false), nil
	case "json-pretty":
		return NewJSONFormatter(w, true), nil
	case "yaml":
		return NewYAMLFormatter(w), nil
	case "human":
		return NewHumanFormatter(w), nil
	default:
		return nil, ValidateFormat(format)
	}
}

// ValidateFormat checks if the format string is valid
func ValidateFormat(format string) error {
	switch ParseFormat(format) {
	case "json", "json-pretty", "yaml", "human":
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: json, json-pretty, yaml, human)", format)
	}
}

// ParseFormat normalizes the format string
func ParseFormat(format string) string {
	switch format {
	case "json", "JSON", "":
		return "json"
	case "json-pretty", "pretty":
		return "json-pretty"
	case "yaml", "YAML", "yml":
		return "yaml"
	case "human", "text":
		return "human"
	default:
		return format
	}
}
