package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Role is the speaker of a decoded message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// RoleFor maps a bubble type discriminant to a role
func RoleFor(bubbleType int) Role {
	switch bubbleType {
	case BubbleTypeUser:
		return RoleUser
	case BubbleTypeAssistant:
		return RoleAssistant
	default:
		return RoleTool
	}
}

// ToolInfo is the decoded tool invocation of a message
type ToolInfo struct {
	Name          string      `json:"name" yaml:"name"`
	Params        interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Result        interface{} `json:"result,omitempty" yaml:"result,omitempty"`
	WorkspacePath string      `json:"workspacePath,omitempty" yaml:"workspacePath,omitempty"`
}

// Message is the canonical form of one bubble. Content is always set,
// possibly empty.
type Message struct {
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	BubbleID  string     `json:"bubbleId" yaml:"bubbleId"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	ToolInfo  *ToolInfo  `json:"toolInfo,omitempty" yaml:"toolInfo,omitempty"`
}

// ParseOptions controls batch decoding
type ParseOptions struct {
	MaxContentLength int  // 0 means no cap
	ExcludeTools     bool // drop ToolInfo, keep the message
}

// DecodeMessage converts a raw bubble into a Message
func DecodeMessage(bubble *RawBubble) Message {
	msg := Message{
		Role:      RoleFor(bubble.Type),
		BubbleID:  bubble.BubbleID,
		Timestamp: bubble.GetTimestamp(),
	}

	switch msg.Role {
	case RoleUser:
		msg.Content = ParseRichText(bubble.RichText)
		if msg.Content == "" {
			msg.Content = bubble.Text
		}
	case RoleAssistant:
		msg.Content = appendCodeBlocks(bubble.Text, bubble.CodeBlocks)
	default:
		msg.Content = bubble.Text
	}

	if bubble.ToolFormerData != nil {
		msg.ToolInfo = decodeToolInfo(bubble.ToolFormerData)
	}

	return msg
}

// DecodeMessages decodes bubbles in order, applying opts
func DecodeMessages(bubbles []*RawBubble, opts ParseOptions) []Message {
	messages := make([]Message, 0, len(bubbles))
	for _, bubble := range bubbles {
		if bubble == nil {
			continue
		}
		msg := DecodeMessage(bubble)
		msg.Content = TruncateContent(msg.Content, opts.MaxContentLength)
		if opts.ExcludeTools {
			msg.ToolInfo = nil
		}
		messages = append(messages, msg)
	}
	return messages
}

// TruncateContent cuts content to limit runes and appends "...". The result
// may be up to three runes longer than limit.
func TruncateContent(content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit]) + "..."
}

func decodeToolInfo(tfd *ToolFormerData) *ToolInfo {
	info := &ToolInfo{Name: tfd.Name}
	if info.Name == "" {
		info.Name = fmt.Sprintf("tool_%d", tfd.Tool)
	}

	if v, ok := parseJSONField(tfd.Params); ok {
		info.Params = v
	}
	if v, ok := parseJSONField(tfd.Result); ok {
		info.Result = v
	}
	info.WorkspacePath = workspaceResultsPath(tfd.Result)

	return info
}

// parseJSONField decodes a serialized JSON field; empty or invalid input
// reports false
func parseJSONField(s string) (interface{}, bool) {
	if s == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// appendCodeBlocks adds fenced code blocks not already present in text
func appendCodeBlocks(text string, blocks []CodeBlock) string {
	parts := []string{}
	if text != "" {
		parts = append(parts, text)
	}
	for _, block := range blocks {
		if block.Content == "" || strings.Contains(text, block.Content) {
			continue
		}
		parts = append(parts, fmt.Sprintf("```%s\n%s\n```", block.Language, block.Content))
	}
	return strings.Join(parts, "\n\n")
}
