package kicadsexp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLeftParen
	TokenRightParen
	TokenSymbol
	TokenString
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenSymbol:
		return "symbol"
	case TokenString:
		return "string"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexical token with the line it started on.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes KiCad s-expressions from a stream. Library files can be
// tens of megabytes, so nothing is buffered beyond the current token.
type Lexer struct {
	reader *bufio.Reader
	line   int
}

// NewLexer returns a lexer reading from r.
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{reader: bufio.NewReader(r), line: 1}
}

// Next returns the next token, or a TokenEOF token at end of input.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpace(); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{Type: TokenEOF, Line: l.line}, nil
		}
		return Token{}, err
	}

	ch, _, err := l.reader.ReadRune()
	if err != nil {
		return Token{}, err
	}
	switch ch {
	case '(':
		return Token{Type: TokenLeftParen, Value: "(", Line: l.line}, nil
	case ')':
		return Token{Type: TokenRightParen, Value: ")", Line: l.line}, nil
	case '"':
		return l.quoted()
	}
	if err := l.reader.UnreadRune(); err != nil {
		return Token{}, err
	}
	return l.symbol()
}

// skipSpace consumes whitespace and '#' line comments.
func (l *Lexer) skipSpace() error {
	for {
		ch, _, err := l.reader.ReadRune()
		if err != nil {
			return err
		}
		switch {
		case ch == '\n':
			l.line++
		case unicode.IsSpace(ch):
		case ch == '#':
			if _, err := l.reader.ReadString('\n'); err != nil {
				return err
			}
			l.line++
		default:
			return l.reader.UnreadRune()
		}
	}
}

func (l *Lexer) quoted() (Token, error) {
	start := l.line
	var out []rune
	for {
		ch, _, err := l.reader.ReadRune()
		if err != nil {
			return Token{}, fmt.Errorf("line %d: unterminated string", start)
		}
		switch ch {
		case '"':
			return Token{Type: TokenString, Value: string(out), Line: start}, nil
		case '\n':
			l.line++
			out = append(out, ch)
		case '\\':
			next, _, err := l.reader.ReadRune()
			if err != nil {
				return Token{}, fmt.Errorf("line %d: unterminated escape", l.line)
			}
			switch next {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, next)
			}
		default:
			out = append(out, ch)
		}
	}
}

func (l *Lexer) symbol() (Token, error) {
	var out []rune
	for {
		ch, _, err := l.reader.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			if err := l.reader.UnreadRune(); err != nil {
				return Token{}, err
			}
			break
		}
		out = append(out, ch)
	}
	if len(out) == 0 {
		return Token{}, fmt.Errorf("line %d: empty symbol", l.line)
	}
	return Token{Type: TokenSymbol, Value: string(out), Line: l.line}, nil
}
