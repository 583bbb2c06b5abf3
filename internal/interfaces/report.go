package interfaces

import (
	"io"

	"github.com/ternarybob/auditmysite/internal/models"
)

// ReportWriter renders a run result to an output stream
type ReportWriter interface {
	// Extension returns the file extension for this format, without the dot
	Extension() string

	// Write renders the result to w
	Write(w io.Writer, result *models.RunResult) error
}
