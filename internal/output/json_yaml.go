package output

import (
	"encoding/json"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// JSONFormatter formats events as JSON lines, or indented JSON documents
type JSONFormatter struct {
	Writer io.Writer
	Indent bool

	mu sync.Mutex
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{
		Writer: w,
		Indent: indent,
	}
}

// Print formats and prints one event as JSON
func (f *JSONFormatter) Print(ev *domain.EnrichedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoder := json.NewEncoder(f.Writer)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(ev)
}

// YAMLFormatter formats events as a stream of YAML documents
type YAMLFormatter struct {
	Writer io.Writer

	mu      sync.Mutex
	encoder *yaml.Encoder
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	return &YAMLFormatter{Writer: w, encoder: encoder}
}

// Print formats and prints one event as a YAML document
func (f *YAMLFormatter) Print(ev *domain.EnrichedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encoder.Encode(ev)
}

// Close terminates the YAML stream
func (f *YAMLFormatter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encoder.Close()
}
