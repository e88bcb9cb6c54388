// Package script parses and runs line-oriented circuit edit scripts:
//
//	# comments run to end of line
//	place resistor at 0,0 board 5,5 as R1
//	place led at 10,0 rotated 90
//	connect R1.2 D1.2
//	net R1.2 D1.2 OUT
//	set R1 value "4k7"
//	move R1 to 2.54,0 board
//	rotate D1 180
//	disconnect R1.2 D1.2
//	remove D1
//	undo
//	redo
//	snapshot "before export"
//	validate
package script

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes edit scripts. Newlines separate statements.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "EOL", Pattern: `[\n;]+`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Number", Pattern: `[-+]?[0-9]+(?:\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[.,=]`},
})

// Script is a parsed file.
type Script struct {
	Statements []*Statement `( @@ | EOL )*`
}

// Statement is one line. Exactly one field is set.
type Statement struct {
	Pos lexer.Position

	Place      *Place      `  @@`
	Connect    *Connect    `| @@`
	Disconnect *Disconnect `| @@`
	Net        *Net        `| @@`
	Set        *Set        `| @@`
	Move       *Move       `| @@`
	Rotate     *Rotate     `| @@`
	Remove     *Remove     `| @@`
	Snapshot   *Snapshot   `| @@`
	Undo       bool        `| @"undo"`
	Redo       bool        `| @"redo"`
	Validate   bool        `| @"validate"`
}

// Coord is an x,y pair in millimeters.
type Coord struct {
	X float64 `@Number ","`
	Y float64 `@Number`
}

// PinRef names a pin as Component.Pin, e.g. R1.2 or U1.VCC.
type PinRef struct {
	Component string `@Ident "."`
	Pin       string `@( Ident | Number )`
}

type Place struct {
	Kind     string   `"place" @Ident "at"`
	At       *Coord   `@@`
	Board    *Coord   `( "board" @@ )?`
	Rotation *float64 `( "rotated" @Number )?`
	Name     string   `( "as" @Ident )?`
}

type Connect struct {
	From *PinRef `"connect" @@`
	To   *PinRef `@@`
	Net  string  `( "net" @Ident )?`
}

type Disconnect struct {
	From *PinRef `"disconnect" ( @@`
	To   *PinRef `  @@`
	ID   string  `| @( String | Ident ) )`
}

type Net struct {
	From *PinRef `"net" @@`
	To   *PinRef `@@`
	Name string  `@( Ident | String )`
}

type Set struct {
	Component string `"set" @Ident`
	Key       string `@Ident`
	Value     string `"="? @( String | Ident | Number )`
}

type Move struct {
	Component string `"move" @Ident "to"`
	To        *Coord `@@`
	Board     bool   `@"board"?`
}

type Rotate struct {
	Component string   `"rotate" @Ident`
	Degrees   *float64 `@Number?`
}

type Remove struct {
	Component string `"remove" @Ident`
}

type Snapshot struct {
	Label string `"snapshot" @String?`
}
