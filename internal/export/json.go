package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/cursor-history/internal/history"
)

// JSONExporter exports sessions in JSON format (pretty-printed)
type JSONExporter struct{}

// Export writes the session metadata and its messages as one document
func (e *JSONExporter) Export(session *history.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(session)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
