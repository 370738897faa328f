package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// UdfSpec registers a user-defined scalar function by name so the builder
// can type-check and evaluate calls to it; functions named in a query but
// absent from this registry build into an unregistered expr.Udf, which
// fails type-checking when the factory asks for its OutputSchema.
type UdfSpec struct {
	ReturnType types.FieldType
	Nullable   bool
	Fn         expr.UdfFunc
}

// builder converts grammar nodes into expr.Expression trees against a
// fixed schema, tracking the UDF registry available to function calls.
type builder struct {
	schema types.Schema
	udfs   map[string]UdfSpec
}

func newBuilder(schema types.Schema, udfs map[string]UdfSpec) *builder {
	return &builder{schema: schema, udfs: udfs}
}

func (b *builder) expr(e *Expr) (expr.Expression, error) {
	left, err := b.and(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Or {
		right, err := b.and(r)
		if err != nil {
			return nil, err
		}
		left = &expr.BinaryOperator{Op: expr.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (b *builder) and(e *AndExpr) (expr.Expression, error) {
	left, err := b.not(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.And {
		right, err := b.not(r)
		if err != nil {
			return nil, err
		}
		left = &expr.BinaryOperator{Op: expr.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (b *builder) not(e *NotExpr) (expr.Expression, error) {
	inner, err := b.comparison(e.Expr)
	if err != nil {
		return nil, err
	}
	if e.Not {
		return &expr.UnaryOperator{Op: expr.UnaryNot, Arg: inner}, nil
	}
	return inner, nil
}

var comparisonOps = map[string]expr.BinaryOp{
	"=": expr.OpEq, "<>": expr.OpNotEq, "!=": expr.OpNotEq,
	"<": expr.OpLt, "<=": expr.OpLte, ">": expr.OpGt, ">=": expr.OpGte,
}

func (b *builder) comparison(c *Comparison) (expr.Expression, error) {
	left, err := b.additive(c.Left)
	if err != nil {
		return nil, err
	}
	if c.Right == nil {
		return left, nil
	}
	right, err := b.additive(c.Right)
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[c.Op]
	if !ok {
		return nil, fmt.Errorf("sql: unknown comparison operator %q", c.Op)
	}
	return &expr.BinaryOperator{Op: op, Left: left, Right: right}, nil
}

func (b *builder) additive(a *Additive) (expr.Expression, error) {
	left, err := b.multiplicative(a.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		right, err := b.multiplicative(r.Right)
		if err != nil {
			return nil, err
		}
		op := expr.OpAdd
		if r.Op == "-" {
			op = expr.OpSub
		}
		left = &expr.BinaryOperator{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (b *builder) multiplicative(m *Multiplicative) (expr.Expression, error) {
	left, err := b.unary(m.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range m.Rest {
		right, err := b.unary(r.Right)
		if err != nil {
			return nil, err
		}
		var op expr.BinaryOp
		switch r.Op {
		case "*":
			op = expr.OpMul
		case "/":
			op = expr.OpDiv
		default:
			op = expr.OpMod
		}
		left = &expr.BinaryOperator{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (b *builder) unary(u *Unary) (expr.Expression, error) {
	operand, err := b.primary(u.Operand)
	if err != nil {
		return nil, err
	}
	if u.Neg {
		return &expr.UnaryOperator{Op: expr.UnaryNegate, Arg: operand}, nil
	}
	return operand, nil
}

func unquoteSQLString(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func (b *builder) primary(p *Primary) (expr.Expression, error) {
	switch {
	case p.Paren != nil:
		return b.expr(p.Paren)
	case p.Case != nil:
		return b.caseExpr(p.Case)
	case p.Cast != nil:
		return b.castExpr(p.Cast)
	case p.Null:
		return &expr.Literal{Value: types.NullField(types.FieldTypeNull)}, nil
	case p.Bool != "":
		return &expr.Literal{Value: types.BoolField(strings.EqualFold(p.Bool, "TRUE"))}, nil
	case p.Number != "":
		if strings.Contains(p.Number, ".") {
			f, err := strconv.ParseFloat(p.Number, 64)
			if err != nil {
				return nil, fmt.Errorf("sql: invalid numeric literal %q: %w", p.Number, err)
			}
			return &expr.Literal{Value: types.FloatField(f)}, nil
		}
		n, err := strconv.ParseInt(p.Number, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sql: invalid numeric literal %q: %w", p.Number, err)
		}
		return &expr.Literal{Value: types.IntField(n)}, nil
	case p.String != "":
		return &expr.Literal{Value: types.StringField(unquoteSQLString(p.String))}, nil
	case p.Ref != nil:
		return b.ref(p.Ref)
	default:
		return nil, fmt.Errorf("sql: empty expression")
	}
}

func (b *builder) caseExpr(c *CaseExpr) (expr.Expression, error) {
	out := &expr.CaseWhen{}
	for _, wt := range c.Branches {
		when, err := b.expr(wt.When)
		if err != nil {
			return nil, err
		}
		then, err := b.expr(wt.Then)
		if err != nil {
			return nil, err
		}
		out.Branches = append(out.Branches, expr.CaseBranch{When: when, Then: then})
	}
	if c.Else != nil {
		elseExpr, err := b.expr(c.Else)
		if err != nil {
			return nil, err
		}
		out.Else = elseExpr
	}
	return out, nil
}

var castTypeNames = map[string]types.FieldType{
	"INT": types.FieldTypeInt, "INTEGER": types.FieldTypeInt,
	"UINT": types.FieldTypeUInt, "UNSIGNED": types.FieldTypeUInt,
	"FLOAT": types.FieldTypeFloat, "DOUBLE": types.FieldTypeFloat,
	"BOOLEAN": types.FieldTypeBoolean, "BOOL": types.FieldTypeBoolean,
	"STRING": types.FieldTypeString, "VARCHAR": types.FieldTypeString,
	"TEXT": types.FieldTypeText, "DECIMAL": types.FieldTypeDecimal,
	"TIMESTAMP": types.FieldTypeTimestamp, "DATE": types.FieldTypeDate,
}

func (b *builder) castExpr(c *CastExpr) (expr.Expression, error) {
	arg, err := b.expr(c.Arg)
	if err != nil {
		return nil, err
	}
	t, ok := castTypeNames[strings.ToUpper(c.Type)]
	if !ok {
		return nil, fmt.Errorf("sql: unknown CAST target type %q", c.Type)
	}
	return &expr.Cast{Type: t, Arg: arg}, nil
}

func (b *builder) ref(r *IdentExpr) (expr.Expression, error) {
	if r.Args != nil {
		return b.call(r.Name, r.Args)
	}
	if r.Dot != "" {
		return b.column(r.Name + "." + r.Dot)
	}
	return b.column(r.Name)
}

func (b *builder) column(name string) (expr.Expression, error) {
	idx, err := resolveColumn(b.schema, name)
	if err != nil {
		return nil, err
	}
	return &expr.Column{Index: idx}, nil
}

// resolveColumn finds name in schema, trying an exact match, then a
// case-insensitive match, then (for an unqualified name against a joined
// schema whose fields were qualified "alias.column") a unique suffix match.
func resolveColumn(schema types.Schema, name string) (int, error) {
	if idx := schema.FieldIndex(name); idx >= 0 {
		return idx, nil
	}
	for i, f := range schema.Fields {
		if strings.EqualFold(f.Name, name) {
			return i, nil
		}
	}
	suffix := "." + name
	found := -1
	for i, f := range schema.Fields {
		if strings.HasSuffix(strings.ToLower(f.Name), strings.ToLower(suffix)) {
			if found >= 0 {
				return -1, fmt.Errorf("%w: column reference %q is ambiguous", types.ErrFieldNotFound, name)
			}
			found = i
		}
	}
	if found >= 0 {
		return found, nil
	}
	return -1, fmt.Errorf("%w: column %q", types.ErrFieldNotFound, name)
}

func (b *builder) args(list *ArgList) ([]expr.Expression, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]expr.Expression, len(list.Args))
	for i, a := range list.Args {
		ex, err := b.expr(a)
		if err != nil {
			return nil, err
		}
		out[i] = ex
	}
	return out, nil
}

var scalarFuncNamesByName = map[string]expr.ScalarFunc{
	"ABS": expr.ScalarAbs, "ROUND": expr.ScalarRound, "UCASE": expr.ScalarUcase,
	"CONCAT": expr.ScalarConcat, "LENGTH": expr.ScalarLength,
}

var aggregateFuncNamesByName = map[string]expr.AggregateFunc{
	"COUNT": expr.AggregateCount, "SUM": expr.AggregateSum, "AVG": expr.AggregateAvg,
	"MIN": expr.AggregateMin, "MAX": expr.AggregateMax,
	"MIN_VALUE": expr.AggregateMinValue, "MAX_VALUE": expr.AggregateMaxValue,
}

// aggregateFuncByName is used by the planner's aggregate-hoisting pass to
// recognize an aggregate call without building it.
func aggregateFuncByName(name string) (expr.AggregateFunc, bool) {
	f, ok := aggregateFuncNamesByName[strings.ToUpper(name)]
	return f, ok
}

func (b *builder) call(name string, argList *ArgList) (expr.Expression, error) {
	upper := strings.ToUpper(name)

	if _, ok := aggregateFuncNamesByName[upper]; ok {
		return nil, fmt.Errorf("sql: aggregate function %s used outside GROUP BY hoisting", upper)
	}

	if fun, ok := scalarFuncNamesByName[upper]; ok {
		args, err := b.args(argList)
		if err != nil {
			return nil, err
		}
		return &expr.ScalarFunction{Fun: fun, Args: args}, nil
	}

	switch upper {
	case "NOW":
		return expr.Now{}, nil

	case "COALESCE":
		args, err := b.args(argList)
		if err != nil {
			return nil, err
		}
		return &expr.ConditionalFunction{Fun: expr.ConditionalCoalesce, Args: args}, nil

	case "NULLIF":
		args, err := b.args(argList)
		if err != nil {
			return nil, err
		}
		return &expr.ConditionalFunction{Fun: expr.ConditionalNullIf, Args: args}, nil

	case "DISTANCE":
		args, err := b.args(argList)
		if err != nil {
			return nil, err
		}
		return &expr.GeoFunction{Fun: expr.GeoDistance, Args: args}, nil

	case "EXTRACT", "DATE_TRUNC":
		if argList == nil || len(argList.Args) != 2 {
			return nil, fmt.Errorf("sql: %s takes (part, column)", upper)
		}
		part, ok := literalString(argList.Args[0])
		if !ok {
			return nil, fmt.Errorf("sql: %s's first argument must be a string literal part name", upper)
		}
		arg, err := b.expr(argList.Args[1])
		if err != nil {
			return nil, err
		}
		fun := expr.DateTimeExtract
		if upper == "DATE_TRUNC" {
			fun = expr.DateTimeTrunc
		}
		return &expr.DateTimeFunction{Fun: fun, Part: strings.ToLower(part), Arg: arg}, nil

	case "JSON_VALUE":
		if argList == nil || len(argList.Args) != 2 {
			return nil, fmt.Errorf("sql: JSON_VALUE takes (column, path)")
		}
		path, ok := literalString(argList.Args[1])
		if !ok {
			return nil, fmt.Errorf("sql: JSON_VALUE's second argument must be a string literal path")
		}
		arg, err := b.expr(argList.Args[0])
		if err != nil {
			return nil, err
		}
		return &expr.JsonFunction{Arg: arg, Path: path}, nil
	}

	if spec, ok := b.udfs[name]; ok {
		args, err := b.args(argList)
		if err != nil {
			return nil, err
		}
		return &expr.Udf{Name: name, Args: args, ReturnType: spec.ReturnType, Nullable: spec.Nullable, Fn: spec.Fn}, nil
	}

	args, err := b.args(argList)
	if err != nil {
		return nil, err
	}
	return &expr.Udf{Name: name, Args: args}, nil
}

// literalString reports whether e is, after stripping any purely
// pass-through precedence levels, a bare string literal — used for
// argument positions (EXTRACT's part, JSON_VALUE's path) that are SQL
// syntax-level constants rather than evaluated expressions.
func literalString(e *Expr) (string, bool) {
	p := asBarePrimary(e)
	if p == nil || p.String == "" {
		return "", false
	}
	return unquoteSQLString(p.String), true
}

// asBarePrimary descends through every precedence level, returning the
// Primary at the bottom only if no operator was applied at any level.
func asBarePrimary(e *Expr) *Primary {
	if e == nil || len(e.Or) != 0 {
		return nil
	}
	a := e.Left
	if len(a.And) != 0 {
		return nil
	}
	n := a.Left
	if n.Not {
		return nil
	}
	c := n.Expr
	if c.Right != nil {
		return nil
	}
	add := c.Left
	if len(add.Rest) != 0 {
		return nil
	}
	mul := add.Left
	if len(mul.Rest) != 0 {
		return nil
	}
	u := mul.Left
	if u.Neg {
		return nil
	}
	return u.Operand
}
