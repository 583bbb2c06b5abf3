package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/auditmysite/internal/interfaces"
	"github.com/ternarybob/auditmysite/internal/models"
)

// WriterForFormat resolves a format name to its writer
func WriterForFormat(format string) (interfaces.ReportWriter, error) {
	switch format {
	case "json", "":
		return NewJSONWriter(), nil
	case "markdown", "md":
		return NewMarkdownWriter(), nil
	case "html":
		return NewHTMLWriter(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile renders a run result into outputDir, named by run ID, and
// returns the written path
func WriteFile(writer interfaces.ReportWriter, outputDir string, result *models.RunResult) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("audit-%s.%s", result.RunID, writer.Extension()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := writer.Write(f, result); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
