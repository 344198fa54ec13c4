// Package expr implements the small arithmetic language used by formula plugins.
//
// Expressions are parsed into an AST by a recursive-descent parser and interpreted
// against a variable lookup. Nothing is ever executed as host code: the only callable
// names are the whitelisted functions (sigmoid, min, max, abs, sqrt, log, ln, log10,
// exp, pow, round, floor, ceil, tanh, clamp, mean, stddev) and the constants pi and e.
//
// Example:
//
//	e, err := expr.Parse("sigmoid(a * w) + b / 2")
//	v, err := e.Eval(expr.Vars{"a": 1, "b": 2, "w": 0.5})
package expr

import (
	"errors"
	"fmt"
	"sync"
)

// SyntaxError reports a malformed expression. Pos is a 1-based character offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// UnknownIdentifierError is returned when evaluation meets a name with no value.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("%s is not defined", e.Name)
}

// ErrEmpty is returned when parsing a blank expression.
var ErrEmpty = errors.New("empty expression")

// Env resolves identifiers during evaluation.
type Env interface {
	Lookup(name string) (float64, bool)
}

// Vars is a map-backed Env.
type Vars map[string]float64

// Lookup implements Env.
func (v Vars) Lookup(name string) (float64, bool) {
	value, ok := v[name]
	return value, ok
}

// Chain looks names up in each Env in order; earlier entries shadow later ones.
type Chain []Env

// Lookup implements Env.
func (c Chain) Lookup(name string) (float64, bool) {
	for _, env := range c {
		if env == nil {
			continue
		}
		if v, ok := env.Lookup(name); ok {
			return v, true
		}
	}
	return 0, false
}

// Expression is a parsed, reusable expression.
type Expression struct {
	root   node
	vars   []string
}

// MaxLength is the longest source text Parse accepts, in bytes.
const MaxLength = 4096

// Parse parses src into an Expression.
func Parse(src string) (*Expression, error) {
	if len(src) > MaxLength {
		return nil, &SyntaxError{Pos: MaxLength + 1, Msg: fmt.Sprintf("expression longer than %d characters", MaxLength)}
	}

	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 {
		return nil, ErrEmpty
	}

	p := &parser{tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
	}

	var vars []string
	root.collect(map[string]bool{}, &vars)

	return &Expression{root: root, vars: vars}, nil
}

// Eval evaluates the expression against env.
func (e *Expression) Eval(env Env) (float64, error) {
	return e.root.eval(env)
}

// Variables returns the identifiers referenced by the expression in order of first use.
func (e *Expression) Variables() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

// String returns a fully parenthesised rendering of the AST.
func (e *Expression) String() string {
	return e.root.String()
}

// Evaluate parses and evaluates src in one step.
func Evaluate(src string, env Env) (float64, error) {
	e, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return e.Eval(env)
}

// Cache memoises parsed expressions by source text. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Expression
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Expression)}
}

// Get returns the parsed form of src, parsing and storing it on first use.
// Parse failures are not cached.
func (c *Cache) Get(src string) (*Expression, error) {
	c.mu.RLock()
	e, ok := c.entries[src]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := Parse(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[src] = e
	c.mu.Unlock()
	return e, nil
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
