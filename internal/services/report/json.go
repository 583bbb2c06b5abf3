package report

import (
	"encoding/json"
	"io"

	"github.com/ternarybob/auditmysite/internal/models"
)

// JSONWriter renders a run result as indented JSON
type JSONWriter struct{}

func NewJSONWriter() *JSONWriter { return &JSONWriter{} }

func (w *JSONWriter) Extension() string { return "json" }

func (w *JSONWriter) Write(out io.Writer, result *models.RunResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
