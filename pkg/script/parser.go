package script

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

// Parser parses edit scripts.
type Parser struct {
	parser *participle.Parser[Script]
}

func NewParser() (*Parser, error) {
	parser, err := participle.Build[Script](
		participle.Lexer(ScriptLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.Unquote("String"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(3),
	)
	if err != nil {
		return nil, fmt.Errorf("script: build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

func (p *Parser) Parse(name string, r io.Reader) (*Script, error) {
	s, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return s, nil
}

func (p *Parser) ParseString(name, input string) (*Script, error) {
	s, err := p.parser.ParseString(name, input)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return s, nil
}

func (p *Parser) ParseFile(filename string) (*Script, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("script: open %s: %w", filename, err)
	}
	defer f.Close()
	return p.Parse(filename, f)
}
