package sql

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "String", Pattern: `'[^']*'`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `<>|<=|>=|!=|[-+*/%(),.=<>]`},
})

var parser = participle.MustBuild[Query](
	participle.Lexer(sqlLexer),
	participle.CaseInsensitive("Ident"),
	participle.Elide("Whitespace"),
	participle.UseLookahead(8),
)

// Parse parses a single SELECT statement, with any UNION [ALL] arms, into
// its grammar tree.
func Parse(query string) (*Query, error) {
	return parser.ParseString("", query)
}
