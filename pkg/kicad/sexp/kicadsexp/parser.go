// Package kicadsexp is a small streaming s-expression reader for KiCad symbol
// libraries and footprints. Quoted strings and bare atoms both become Symbol
// leaves; the quoting is not preserved.
package kicadsexp

import (
	"fmt"
	"io"
	"strings"
)

// Sexp is either a Symbol leaf or a *List.
type Sexp interface {
	IsLeaf() bool
	String() string
}

// Symbol is an atom: keyword, number or string.
type Symbol string

func (s Symbol) IsLeaf() bool   { return true }
func (s Symbol) String() string { return string(s) }

// List is a parenthesized sequence.
type List struct {
	items []Sexp
}

// NewList builds a list from items, used by tests and writers.
func NewList(items ...Sexp) *List {
	return &List{items: items}
}

func (l *List) IsLeaf() bool { return false }

// Items returns the list elements. The slice must not be modified.
func (l *List) Items() []Sexp { return l.items }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.items) }

// Get returns element i or nil when out of range.
func (l *List) Get(i int) Sexp {
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

// Head returns the keyword of the list, "" when the first element is not a
// symbol.
func (l *List) Head() string {
	if len(l.items) == 0 {
		return ""
	}
	if sym, ok := l.items[0].(Symbol); ok {
		return string(sym)
	}
	return ""
}

func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, item := range l.items {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(item.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Parser builds Sexp trees from a Lexer.
type Parser struct {
	lexer *Lexer
}

// NewParser returns a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{lexer: NewLexer(r)}
}

// Parse reads every top-level expression from r.
func Parse(r io.Reader) ([]Sexp, error) {
	return NewParser(r).ParseAll()
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) ([]Sexp, error) {
	return Parse(strings.NewReader(s))
}

// ParseAll reads expressions until end of input.
func (p *Parser) ParseAll() ([]Sexp, error) {
	var out []Sexp
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return out, nil
		}
		expr, err := p.expr(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
}

func (p *Parser) expr(tok Token) (Sexp, error) {
	switch tok.Type {
	case TokenLeftParen:
		return p.list(tok.Line)
	case TokenSymbol, TokenString:
		return Symbol(tok.Value), nil
	default:
		return nil, fmt.Errorf("line %d: unexpected %s", tok.Line, tok.Type)
	}
}

func (p *Parser) list(start int) (*List, error) {
	l := &List{}
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenRightParen:
			return l, nil
		case TokenEOF:
			return nil, fmt.Errorf("line %d: list never closed", start)
		}
		item, err := p.expr(tok)
		if err != nil {
			return nil, err
		}
		l.items = append(l.items, item)
	}
}
