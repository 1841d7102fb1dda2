package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/cursor-history/internal/history"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export writes one JSON object per message
func (e *JSONLExporter) Export(session *history.Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range session.Messages {
		obj := map[string]interface{}{
			"sessionId": session.SessionID,
			"bubbleId":  msg.BubbleID,
			"role":      msg.Role,
			"content":   msg.Content,
		}
		if msg.Timestamp != nil {
			obj["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if msg.ToolInfo != nil {
			obj["toolInfo"] = msg.ToolInfo
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
