package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/hpungsan/stasher/internal/stash"
)

// Names of the helpers comparisons are rewritten to. The leading underscore
// keeps them out of the way of item attribute names.
const (
	compareFunc = "_compare"
	truthyFunc  = "_truthy"
)

// Predicate is a compiled rule condition over item attributes.
type Predicate interface {
	Eval(attrs stash.Attributes) (bool, error)
}

// Compile parses a predicate expression written in the expr language
// (github.com/expr-lang/expr), with these item-specific semantics:
//
//   - an attribute that is missing or nil makes every comparison false
//   - == and != compare numbers by value regardless of int or float
//   - <, <=, > and >= need a number on both sides
//   - contains is a case-insensitive substring test
//   - matches takes a regular expression; literal patterns compile here
//   - a bare attribute, or one under !, && or ||, tests truthiness
func Compile(src string) (Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}

	p := &predicate{patterns: make(map[string]*regexp.Regexp)}
	rw := &rewriter{patterns: p.patterns}

	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.Patch(rw),
		expr.Function(compareFunc, p.compare),
		expr.Function(truthyFunc, func(params ...any) (any, error) {
			return truthy(params[0]), nil
		}),
	)
	if rw.err != nil {
		return nil, rw.err
	}
	if err != nil {
		// expr errors carry a source snippet on the following lines
		msg, _, _ := strings.Cut(err.Error(), "\n")
		return nil, fmt.Errorf("%s", msg)
	}
	p.program = program
	return p, nil
}

type predicate struct {
	program *vm.Program

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func (p *predicate) Eval(attrs stash.Attributes) (bool, error) {
	out, err := expr.Run(p.program, map[string]any(attrs))
	if err != nil {
		msg, _, _ := strings.Cut(err.Error(), "\n")
		return false, fmt.Errorf("%s", msg)
	}
	return truthy(out), nil
}

// compare implements every rewritten comparison as _compare(op, attr, lit).
func (p *predicate) compare(params ...any) (any, error) {
	op, _ := params[0].(string)
	v, lit := params[1], params[2]
	if v == nil || lit == nil {
		return false, nil
	}

	switch op {
	case "==":
		return equal(v, lit), nil
	case "!=":
		return !equal(v, lit), nil
	case "contains":
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("%v is %T, not a string", v, v)
		}
		sub, ok := lit.(string)
		if !ok {
			return false, fmt.Errorf("contains needs a string, got %T", lit)
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	case "matches":
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("%v is %T, not a string", v, v)
		}
		pattern, ok := lit.(string)
		if !ok {
			return false, fmt.Errorf("matches needs a string pattern, got %T", lit)
		}
		re, err := p.pattern(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}

	f, ok := toFloat(v)
	if !ok {
		return false, fmt.Errorf("%v is %T, not a number", v, v)
	}
	want, ok := toFloat(lit)
	if !ok {
		return false, fmt.Errorf("%s needs a number, got %T", op, lit)
	}
	switch op {
	case "<":
		return f < want, nil
	case "<=":
		return f <= want, nil
	case ">":
		return f > want, nil
	default:
		return f >= want, nil
	}
}

// pattern returns the compiled regular expression, compiling patterns that
// only become known at evaluation time.
func (p *predicate) pattern(src string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.patterns[src]; ok {
		return re, nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	p.patterns[src] = re
	return re, nil
}

// rewriter turns comparisons into _compare calls and wraps operands of the
// boolean operators in _truthy. ast.Walk visits children first, so nested
// comparisons are already calls by the time their parent is seen.
type rewriter struct {
	patterns map[string]*regexp.Regexp
	err      error
}

func (r *rewriter) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "==", "!=", "<", "<=", ">", ">=", "contains", "matches":
			r.check(n)
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: compareFunc},
				Arguments: []ast.Node{&ast.StringNode{Value: n.Operator}, n.Left, n.Right},
			})
		case "&&", "||", "and", "or":
			n.Left = wrapTruthy(n.Left)
			n.Right = wrapTruthy(n.Right)
		}
	case *ast.UnaryNode:
		if n.Operator == "!" || n.Operator == "not" {
			n.Node = wrapTruthy(n.Node)
		}
	}
}

// check rejects literal operands that can never compare.
func (r *rewriter) check(n *ast.BinaryNode) {
	if r.err != nil {
		return
	}
	switch n.Operator {
	case "<", "<=", ">", ">=":
		switch n.Right.(type) {
		case *ast.StringNode, *ast.BoolNode, *ast.NilNode:
			r.err = fmt.Errorf("%s needs a number", n.Operator)
		}
	case "contains", "matches":
		switch lit := n.Right.(type) {
		case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.NilNode:
			r.err = fmt.Errorf("%s needs a string", n.Operator)
		case *ast.StringNode:
			if n.Operator != "matches" {
				return
			}
			re, err := regexp.Compile(lit.Value)
			if err != nil {
				r.err = fmt.Errorf("matches: %w", err)
				return
			}
			r.patterns[lit.Value] = re
		}
	}
}

func wrapTruthy(n ast.Node) ast.Node {
	switch n.(type) {
	case *ast.IdentifierNode, *ast.MemberNode:
		return &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: truthyFunc},
			Arguments: []ast.Node{n},
		}
	}
	return n
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func equal(v, lit any) bool {
	switch want := lit.(type) {
	case string:
		s, ok := v.(string)
		return ok && s == want
	case bool:
		b, ok := v.(bool)
		return ok && b == want
	}
	want, ok := toFloat(lit)
	if !ok {
		return false
	}
	f, ok := toFloat(v)
	return ok && f == want
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
