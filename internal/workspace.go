package internal

import (
	"strings"

	"github.com/tidwall/gjson"
)

// UnknownProject is the project name used when a path yields no segment
const UnknownProject = "unknown"

// WorkspaceInfo describes the project(s) a session touched
type WorkspaceInfo struct {
	PrimaryPath      string   `json:"primaryPath,omitempty"`
	ProjectName      string   `json:"projectName,omitempty"`
	AllPaths         []string `json:"allPaths,omitempty"` // ordered, unique
	HasProject       bool     `json:"hasProject"`
	IsMultiWorkspace bool     `json:"isMultiWorkspace"`
}

// ExtractWorkspace derives workspace information from the tool results of a
// session's bubbles. The primary path is the first hit in stored order.
func ExtractWorkspace(bubbles []*RawBubble) WorkspaceInfo {
	var info WorkspaceInfo
	seen := make(map[string]bool)

	for _, bubble := range bubbles {
		if bubble == nil || bubble.ToolFormerData == nil {
			continue
		}
		path := WorkspacePathFromResult(bubble.ToolFormerData.Result)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		info.AllPaths = append(info.AllPaths, path)
	}

	if len(info.AllPaths) > 0 {
		info.PrimaryPath = info.AllPaths[0]
		info.ProjectName = ProjectName(info.PrimaryPath)
		info.HasProject = true
		info.IsMultiWorkspace = len(info.AllPaths) > 1
	}
	return info
}

// WorkspacePathFromResult returns the workspace path recorded in a serialized
// tool result: the first key of success.workspaceResults, else success.path
// when it is absolute.
func WorkspacePathFromResult(result string) string {
	if path := workspaceResultsPath(result); path != "" {
		return path
	}
	if result == "" || !gjson.Valid(result) {
		return ""
	}
	path := gjson.Get(result, "success.path")
	if path.Type == gjson.String && isAbsolutePath(path.Str) {
		return path.Str
	}
	return ""
}

// workspaceResultsPath returns the first key of success.workspaceResults in
// document order
func workspaceResultsPath(result string) string {
	if result == "" || !gjson.Valid(result) {
		return ""
	}
	results := gjson.Get(result, "success.workspaceResults")
	if !results.IsObject() {
		return ""
	}

	var first string
	results.ForEach(func(key, _ gjson.Result) bool {
		first = key.String()
		return false
	})
	return first
}

// ProjectName returns the last non-empty segment of path, or "unknown".
// The separator is `\` when the path contains one, else `/`.
func ProjectName(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	sep := "/"
	if strings.Contains(trimmed, `\`) {
		sep = `\`
	}

	parts := strings.Split(trimmed, sep)
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return UnknownProject
}

// isAbsolutePath accepts /unix/paths and drive-letter paths (C:\ or C:/)
func isAbsolutePath(path string) bool {
	if strings.HasPrefix(path, "/") {
		return true
	}
	if len(path) < 3 || path[1] != ':' || (path[2] != '\\' && path[2] != '/') {
		return false
	}
	c := path[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
