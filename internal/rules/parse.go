package rules

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hpungsan/stasher/internal/errors"
)

// groupHeadingLevel is the heading level that opens a rule group.
const groupHeadingLevel = 2

var md = goldmark.New()

// ParseFile reads and parses a rule file.
func ParseFile(path string) (*RuleSet, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("rule file", path)
		}
		return nil, errors.NewInternal(err)
	}
	return Parse(path, src)
}

// Parse builds a rule set from Markdown source.
//
//	## Currency
//	- Chaos [shift]: `name == "Chaos Orb"`
//	- Scrolls: `name contains "scroll"`
//
// Level-2 headings open groups; each top-level list item under a group is one
// rule. Everything else in the document is ignored.
func Parse(name string, src []byte) (*RuleSet, error) {
	doc := md.Parser().Parse(text.NewReader(src))

	set := &RuleSet{Source: name}
	seen := make(map[string]bool)
	var current *Group

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level != groupHeadingLevel {
				continue
			}
			groupName := strings.TrimSpace(inlineText(node, src))
			if groupName == "" {
				return nil, lineError(name, src, node, "empty group heading")
			}
			current = &Group{Name: groupName}
			set.Groups = append(set.Groups, current)

		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				if current == nil {
					return nil, lineError(name, src, item, "rule declared before any group heading")
				}
				rule, err := parseRule(name, src, item)
				if err != nil {
					return nil, err
				}
				rule.Group = current.Name
				id := rule.Identity()
				if seen[id] {
					return nil, errors.NewDuplicateRule(id)
				}
				seen[id] = true
				current.Rules = append(current.Rules, rule)
			}
		}
	}

	return set, nil
}

// parseRule reads "Name [flag, flag]: `predicate`" from one list item.
func parseRule(name string, src []byte, item ast.Node) (*Rule, error) {
	var label strings.Builder
	var expr string
	found := false

	for block := item.FirstChild(); block != nil; block = block.NextSibling() {
		if _, nested := block.(*ast.List); nested {
			continue
		}
		for in := block.FirstChild(); in != nil; in = in.NextSibling() {
			if span, ok := in.(*ast.CodeSpan); ok {
				if !found {
					expr = inlineText(span, src)
					found = true
				}
				continue
			}
			if !found {
				label.WriteString(inlineText(in, src))
			}
		}
	}

	if !found {
		return nil, lineError(name, src, item, "rule has no `predicate` code span")
	}

	head := strings.TrimSuffix(strings.TrimSpace(label.String()), ":")
	head = strings.TrimSpace(head)

	rule := &Rule{Expr: strings.TrimSpace(expr), Line: lineOf(src, item)}
	if strings.HasSuffix(head, "]") {
		open := strings.LastIndex(head, "[")
		if open < 0 {
			return nil, lineError(name, src, item, "unbalanced flag list")
		}
		for _, flag := range strings.Split(head[open+1:len(head)-1], ",") {
			switch strings.ToLower(strings.TrimSpace(flag)) {
			case "":
			case "shift":
				rule.Shift = true
			case "noswitch":
				rule.NoSwitch = true
			case "disabled":
				rule.Disabled = true
			default:
				return nil, lineError(name, src, item, fmt.Sprintf("unknown flag %q", strings.TrimSpace(flag)))
			}
		}
		head = strings.TrimSpace(head[:open])
	}
	if head == "" {
		return nil, lineError(name, src, item, "rule has no name")
	}
	rule.Name = head

	pred, err := Compile(rule.Expr)
	if err != nil {
		return nil, lineError(name, src, item, fmt.Sprintf("rule %q: %v", head, err))
	}
	rule.pred = pred
	return rule, nil
}

// inlineText concatenates the literal text under n.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// lineOf finds the first source line covered by n or its descendants.
func lineOf(src []byte, n ast.Node) int {
	offset := -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || offset >= 0 {
			return ast.WalkStop, nil
		}
		if c.Type() == ast.TypeBlock && c.Lines().Len() > 0 {
			offset = c.Lines().At(0).Start
			return ast.WalkStop, nil
		}
		if t, ok := c.(*ast.Text); ok {
			offset = t.Segment.Start
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if offset < 0 {
		return 0
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}

func lineError(name string, src []byte, n ast.Node, msg string) error {
	return errors.NewInvalidRequest(fmt.Sprintf("%s:%d: %s", name, lineOf(src, n), msg))
}
