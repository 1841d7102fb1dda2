package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Key prefixes inside the key-value table
const (
	ComposerKeyPrefix = "composerData:"
	BubbleKeyPrefix   = "bubbleId:"
)

// Bubble type discriminants
const (
	BubbleTypeUser      = 1
	BubbleTypeAssistant = 2
)

// RawBubble represents a message bubble from the database
type RawBubble struct {
	BubbleID       string          `json:"bubbleId"`
	ChatID         string          `json:"chatId,omitempty"`
	Type           int             `json:"type"` // 1=user, 2=assistant, else tool
	Text           string          `json:"text,omitempty"`
	RichText       string          `json:"richText,omitempty"`
	CodeBlocks     []CodeBlock     `json:"codeBlocks,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	ToolFormerData *ToolFormerData `json:"toolFormerData,omitempty"`
}

// CodeBlock represents a code block in a message
type CodeBlock struct {
	Language string `json:"languageId,omitempty"`
	Content  string `json:"content"`
}

// ToolFormerData is the tool invocation embedded in a bubble. Params and
// Result are JSON documents serialized as strings.
type ToolFormerData struct {
	Tool       int    `json:"tool,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`
	Params     string `json:"params,omitempty"`
	Result     string `json:"result,omitempty"`
	Status     string `json:"status,omitempty"`
}

// RawComposer represents composer data from the database
type RawComposer struct {
	ComposerID                  string               `json:"composerId"`
	Name                        string               `json:"name,omitempty"`
	Text                        string               `json:"text,omitempty"`
	RichText                    string               `json:"richText,omitempty"`
	FullConversationHeadersOnly []ConversationHeader `json:"fullConversationHeadersOnly,omitempty"`
	Conversation                []RawBubble          `json:"conversation,omitempty"` // legacy inline layout
	Context                     *ComposerContext     `json:"context,omitempty"`
	LastUpdatedAt               int64                `json:"lastUpdatedAt,omitempty"`
	CreatedAt                   int64                `json:"createdAt,omitempty"`

	// Set by the reader, not part of the stored payload
	StorePath       string `json:"-"`
	WorkspaceFolder string `json:"-"`
}

// ConversationHeader represents a header in a conversation
type ConversationHeader struct {
	BubbleID string `json:"bubbleId"`
	Type     int    `json:"type"` // 1=user, 2=assistant
}

// ComposerContext holds the selections attached to a composer
type ComposerContext struct {
	FileSelections   []json.RawMessage `json:"fileSelections,omitempty"`
	FolderSelections []json.RawMessage `json:"folderSelections,omitempty"`
	Mentions         json.RawMessage   `json:"mentions,omitempty"`
}

// ParseRawBubble parses a JSON value into a RawBubble
func ParseRawBubble(key string, value []byte) (*RawBubble, error) {
	// Extract chatId and bubbleId from key: bubbleId:<chatId>:<bubbleId>
	parts := splitKey(key, BubbleKeyPrefix)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid bubbleId key format: %s", key)
	}

	var bubble RawBubble
	if err := json.Unmarshal(value, &bubble); err != nil {
		return nil, &DataCorruptionError{Key: key, Err: err}
	}

	bubble.ChatID = parts[0]
	bubble.BubbleID = parts[1]

	return &bubble, nil
}

// ParseRawComposer parses a JSON value into a RawComposer. ComposerID always
// comes from the key.
func ParseRawComposer(key string, value []byte) (*RawComposer, error) {
	// Extract composerId from key: composerData:<composerId>
	parts := splitKey(key, ComposerKeyPrefix)
	if len(parts) != 1 || parts[0] == "" {
		return nil, fmt.Errorf("invalid composerData key format: %s", key)
	}

	var composer RawComposer
	if err := json.Unmarshal(value, &composer); err != nil {
		return nil, &DataCorruptionError{Key: key, Err: err}
	}

	composer.ComposerID = parts[0]

	return &composer, nil
}

// ComposerKey returns the storage key of a session record
func ComposerKey(id string) string {
	return ComposerKeyPrefix + id
}

// BubbleKey returns the storage key of a message record
func BubbleKey(composerID, bubbleID string) string {
	return BubbleKeyPrefix + composerID + ":" + bubbleID
}

// splitKey strips prefix and splits the remainder on ':'
func splitKey(key, prefix string) []string {
	if !strings.HasPrefix(key, prefix) {
		return nil
	}
	return strings.Split(key[len(prefix):], ":")
}

// GetTimestamp returns the bubble time, or nil when the record carries none
func (rb *RawBubble) GetTimestamp() *time.Time {
	if rb.Timestamp > 0 {
		t := time.UnixMilli(rb.Timestamp)
		return &t
	}
	if rb.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, rb.CreatedAt); err == nil {
			return &t
		}
	}
	return nil
}

// GetCreatedAt returns a time.Time from the timestamp
func (rc *RawComposer) GetCreatedAt() time.Time {
	if rc.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(rc.CreatedAt)
}

