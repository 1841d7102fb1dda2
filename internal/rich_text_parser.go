package internal

import (
	"encoding/json"
	"strings"
)

// Lexical text format bit marking inline code
const richTextFormatCode = 16

// richNode is the closed set of rich text node kinds
type richNode interface {
	richNode()
}

type textNode struct {
	Text string
}

type inlineCodeNode struct {
	Text string
}

type paragraphNode struct {
	Children []richNode
}

type codeNode struct {
	Language string
	Children []richNode
}

type genericNode struct {
	Children []richNode
}

func (*textNode) richNode()       {}
func (*inlineCodeNode) richNode() {}
func (*paragraphNode) richNode()  {}
func (*codeNode) richNode()       {}
func (*genericNode) richNode()    {}

// rawRichNode is the stored shape of every node
type rawRichNode struct {
	Type     string         `json:"type"`
	Text     string         `json:"text"`
	Format   int            `json:"format"`
	Language string         `json:"language"`
	Children []*rawRichNode `json:"children"`
}

// ParseRichText converts a serialized rich text document to plain text.
// It never fails: input that is not JSON or has no root yields "".
func ParseRichText(richTextJSON string) string {
	if richTextJSON == "" {
		return ""
	}

	var doc struct {
		Root *rawRichNode `json:"root"`
	}
	if err := json.Unmarshal([]byte(richTextJSON), &doc); err != nil {
		return ""
	}
	if doc.Root == nil {
		return ""
	}

	return renderRichText(buildRichTree(doc.Root))
}

// buildRichTree maps the stored tree onto node kinds without recursion
func buildRichTree(root *rawRichNode) richNode {
	type task struct {
		raw *rawRichNode
		dst *richNode
	}

	var out richNode
	stack := []task{{raw: root, dst: &out}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, children := newRichNode(t.raw)
		*t.dst = node
		if children == nil {
			continue
		}
		for i, child := range t.raw.Children {
			if child == nil {
				children[i] = &genericNode{}
				continue
			}
			stack = append(stack, task{raw: child, dst: &children[i]})
		}
	}
	return out
}

// newRichNode creates the node for raw and returns the slice its children
// are to be written into, if any
func newRichNode(raw *rawRichNode) (richNode, []richNode) {
	children := make([]richNode, len(raw.Children))

	switch raw.Type {
	case "paragraph":
		return &paragraphNode{Children: children}, children
	case "code":
		return &codeNode{Language: raw.Language, Children: children}, children
	case "inline-code":
		text := raw.Text
		if text == "" {
			text = rawDescendantText(raw)
		}
		return &inlineCodeNode{Text: text}, nil
	case "text", "code-highlight":
		return textOrInline(raw), nil
	case "":
		if len(raw.Children) == 0 {
			return textOrInline(raw), nil
		}
	}
	return &genericNode{Children: children}, children
}

func textOrInline(raw *rawRichNode) richNode {
	if raw.Format&richTextFormatCode != 0 {
		return &inlineCodeNode{Text: raw.Text}
	}
	return &textNode{Text: raw.Text}
}

// renderRichText walks the tree depth-first with an explicit stack
func renderRichText(root richNode) string {
	type item struct {
		node    richNode
		literal string
	}

	var sb strings.Builder
	stack := []item{{node: root}}
	pushChildren := func(children []richNode) {
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{node: children[i]})
		}
	}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.node == nil {
			sb.WriteString(it.literal)
			continue
		}

		switch n := it.node.(type) {
		case *textNode:
			sb.WriteString(n.Text)
		case *inlineCodeNode:
			sb.WriteString("`" + n.Text + "`")
		case *paragraphNode:
			stack = append(stack, item{literal: "\n"})
			pushChildren(n.Children)
		case *codeNode:
			sb.WriteString("```" + n.Language + "\n" + descendantText(n.Children) + "\n```")
		case *genericNode:
			pushChildren(n.Children)
		}
	}

	return sb.String()
}

// descendantText concatenates every text value under children in order
func descendantText(children []richNode) string {
	var sb strings.Builder
	stack := make([]richNode, 0, len(children))
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, children[i])
	}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var kids []richNode
		switch n := node.(type) {
		case *textNode:
			sb.WriteString(n.Text)
		case *inlineCodeNode:
			sb.WriteString(n.Text)
		case *paragraphNode:
			kids = n.Children
		case *codeNode:
			kids = n.Children
		case *genericNode:
			kids = n.Children
		}
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return sb.String()
}

func rawDescendantText(raw *rawRichNode) string {
	var sb strings.Builder
	stack := []*rawRichNode{raw}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if n != raw {
			sb.WriteString(n.Text)
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return sb.String()
}
