package sql

// This file declares the grammar participle builds a parser from. Each
// struct field's tag is a small parsing expression; @@ captures a
// sub-rule, @Ident/@Number/@String capture a token's text, and literal
// strings match a token of that text (case-insensitively for Ident, via
// participle.CaseInsensitive so keywords and identifiers share a token
// class without a reserved-word list).

// Query is a SELECT optionally followed by UNION [ALL] SELECT arms.
type Query struct {
	Select *SelectCore `"SELECT" @@`
	Unions []*UnionArm `@@*`
}

// UnionArm is one "UNION [ALL] SELECT ..." continuation.
type UnionArm struct {
	All    bool        `"UNION" ( @"ALL" )?`
	Select *SelectCore `"SELECT" @@`
}

// SelectCore is a single SELECT body, without its leading keyword (Query
// and UnionArm both consume "SELECT" themselves so the same core can
// follow either).
type SelectCore struct {
	Items   []*SelectItem `@@ ( "," @@ )*`
	From    *FromClause   `"FROM" @@`
	Where   *Expr         `( "WHERE" @@ )?`
	GroupBy []*Expr       `( "GROUP" "BY" @@ ( "," @@ )* )?`
	Having  *Expr         `( "HAVING" @@ )?`
}

// SelectItem is one projected column: either "*" or an expression with an
// optional alias.
type SelectItem struct {
	Star  bool   `(  @"*"`
	Expr  *Expr  ` | @@ )`
	Alias string `( "AS"? @Ident )?`
}

// FromClause is a table reference plus zero or more equi-joins.
type FromClause struct {
	Table *TableRef     `@@`
	Joins []*JoinClause `@@*`
}

// TableRef names a source (directly, or wrapped in TUMBLE/HOP) with an
// optional alias used to qualify its columns when joined.
type TableRef struct {
	Tumble *TumbleSpec `(  @@`
	Hop    *HopSpec    ` | @@`
	Name   string      ` | @Ident )`
	Alias  string       `( "AS"? @Ident )?`
}

// TumbleSpec is TUMBLE(table, column, interval).
type TumbleSpec struct {
	Table    string `"TUMBLE" "(" @Ident`
	Column   string `"," @Ident`
	Interval string `"," @String ")"`
}

// HopSpec is HOP(table, column, hop, interval).
type HopSpec struct {
	Table    string `"HOP" "(" @Ident`
	Column   string `"," @Ident`
	Hop      string `"," @String`
	Interval string `"," @String ")"`
}

// JoinClause is one equi-join: "JOIN <table> ON <condition>".
type JoinClause struct {
	Table *TableRef `"JOIN" @@`
	On    *Expr     `"ON" @@`
}

// Expr is the lowest-precedence expression level: OR-chained AndExprs.
type Expr struct {
	Left *AndExpr   `@@`
	Or   []*AndExpr `( "OR" @@ )*`
}

// AndExpr is AND-chained NotExprs.
type AndExpr struct {
	Left *NotExpr   `@@`
	And  []*NotExpr `( "AND" @@ )*`
}

// NotExpr is an optionally-negated comparison.
type NotExpr struct {
	Not  bool        `( @"NOT" )?`
	Expr *Comparison `@@`
}

// Comparison is an optional single comparison operator between two
// additive expressions (SQL comparisons don't chain).
type Comparison struct {
	Left  *Additive `@@`
	Op    string    `( @( "<>" | "!=" | "<=" | ">=" | "=" | "<" | ">" )`
	Right *Additive `  @@ )?`
}

// Additive is +/- chained multiplicative terms.
type Additive struct {
	Left *Multiplicative `@@`
	Rest []*AdditiveRest `@@*`
}

type AdditiveRest struct {
	Op    string          `@( "+" | "-" )`
	Right *Multiplicative `@@`
}

// Multiplicative is * / % chained unary terms.
type Multiplicative struct {
	Left *Unary                `@@`
	Rest []*MultiplicativeRest `@@*`
}

type MultiplicativeRest struct {
	Op    string `@( "*" | "/" | "%" )`
	Right *Unary `@@`
}

// Unary is an optionally arithmetic-negated primary.
type Unary struct {
	Neg     bool     `( @"-" )?`
	Operand *Primary `@@`
}

// Primary is one irreducible expression term.
type Primary struct {
	Paren  *Expr      `(  "(" @@ ")"`
	Case   *CaseExpr  ` | @@`
	Cast   *CastExpr  ` | @@`
	Null   bool       ` | @"NULL"`
	Bool   string     ` | @( "TRUE" | "FALSE" )`
	Number string     ` | @Number`
	String string     ` | @String`
	Ref    *IdentExpr ` | @@ )`
}

// IdentExpr is a name that is either a (possibly dotted) column reference
// or, when followed by parentheses, a function call. Args is always
// non-nil when the parens were present (even with zero arguments, as in
// NOW()) so the builder can tell "FOO" and "FOO()" apart; ArgList itself
// carries the possibly-empty argument list.
type IdentExpr struct {
	Name string   `@Ident`
	Dot  string   `( "." @Ident`
	Args *ArgList `  | "(" @@ ")" )?`
}

// ArgList is a function call's comma-separated arguments (possibly none),
// or "*" for COUNT(*).
type ArgList struct {
	Star bool    `(  @"*"`
	Args []*Expr ` | ( @@ ( "," @@ )* )? )`
}

// CaseExpr is CASE WHEN ... THEN ... [ELSE ...] END.
type CaseExpr struct {
	Branches []*WhenThen `"CASE" @@+`
	Else     *Expr       `( "ELSE" @@ )? "END"`
}

type WhenThen struct {
	When *Expr `"WHEN" @@`
	Then *Expr `"THEN" @@`
}

// CastExpr is CAST(expr AS type).
type CastExpr struct {
	Arg  *Expr  `"CAST" "(" @@`
	Type string `"AS" @Ident ")"`
}
