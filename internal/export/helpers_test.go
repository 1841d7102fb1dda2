package export

import (
	"time"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/iksnae/cursor-history/internal/index"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testSession(id string, msgs ...internal.Message) *history.Session {
	if msgs == nil {
		msgs = []internal.Message{
			{Role: internal.RoleUser, Content: "Hello, how are you?", BubbleID: "b1"},
			{Role: internal.RoleAssistant, Content: "I'm doing well, thank you!", BubbleID: "b2"},
		}
	}
	return &history.Session{
		SessionMetadata: index.SessionMetadata{
			SessionID:    id,
			Source:       "cursor",
			Title:        "Session " + id,
			ProjectPath:  "/home/me/api",
			ProjectName:  "api",
			HasProject:   true,
			MessageCount: len(msgs),
		},
		Messages: msgs,
	}
}
