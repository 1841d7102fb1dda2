package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/iksnae/cursor-history/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	tests := []struct {
		name      string
		messages  []internal.Message
		wantLines int
	}{
		{
			name:      "basic session",
			messages:  nil,
			wantLines: 2,
		},
		{
			name:      "empty session",
			messages:  []internal.Message{},
			wantLines: 0,
		},
		{
			name: "tool message",
			messages: []internal.Message{
				{
					Role:      internal.RoleTool,
					Content:   "ok",
					BubbleID:  "b9",
					Timestamp: ts("2023-01-01T00:00:00Z"),
					ToolInfo:  &internal.ToolInfo{Name: "run_terminal_cmd", Params: map[string]interface{}{"command": "ls"}},
				},
			},
			wantLines: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONLExporter{}).Export(testSession("s1", tt.messages...), &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			lines := 0
			scanner := bufio.NewScanner(&buf)
			for scanner.Scan() {
				var obj map[string]interface{}
				if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
					t.Fatalf("line %d is not valid JSON: %v", lines, err)
				}
				if obj["sessionId"] != "s1" {
					t.Errorf("sessionId = %v, want s1", obj["sessionId"])
				}
				if _, ok := obj["role"]; !ok {
					t.Error("missing role")
				}
				lines++
			}
			if lines != tt.wantLines {
				t.Errorf("got %d lines, want %d", lines, tt.wantLines)
			}
		})
	}
}

func TestJSONLExporter_ToolFields(t *testing.T) {
	msg := internal.Message{
		Role:      internal.RoleTool,
		BubbleID:  "b1",
		Timestamp: ts("2023-01-01T00:00:00Z"),
		ToolInfo:  &internal.ToolInfo{Name: "read_file", WorkspacePath: "/home/me/api"},
	}

	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(testSession("s1", msg), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if obj["timestamp"] != "2023-01-01T00:00:00Z" {
		t.Errorf("timestamp = %v", obj["timestamp"])
	}
	tool, ok := obj["toolInfo"].(map[string]interface{})
	if !ok {
		t.Fatalf("toolInfo missing: %v", obj)
	}
	if tool["name"] != "read_file" || tool["workspacePath"] != "/home/me/api" {
		t.Errorf("toolInfo = %v", tool)
	}
}

func TestJSONLExporter_Extension(t *testing.T) {
	if got := (&JSONLExporter{}).Extension(); got != "jsonl" {
		t.Errorf("Extension() = %v, want jsonl", got)
	}
}
