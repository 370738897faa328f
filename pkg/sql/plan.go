package sql

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
)

// SourceBinding names an already-registered dag node (a source, or the
// output of some other already-planned sub-DAG) a FROM clause can refer
// to by name, along with the schema it produces.
type SourceBinding struct {
	Node   dag.NodeHandle
	Port   dag.PortHandle
	Schema types.Schema
}

// planner threads node-handle generation and the source/UDF registries
// through the four planning phases for a single Query.
type planner struct {
	dag     *dag.Dag
	sources map[string]SourceBinding
	udfs    map[string]UdfSpec
	seq     int
}

// Plan plans q against the named source bindings, wiring its operators
// into d, and returns the handle/port/schema of the sub-DAG's final
// output. udfs may be nil.
func Plan(d *dag.Dag, q *Query, sources map[string]SourceBinding, udfs map[string]UdfSpec) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	p := &planner{dag: d, sources: sources, udfs: udfs}

	node, port, schema, err := p.planSelectCore(q.Select)
	if err != nil {
		return "", 0, types.Schema{}, err
	}

	for i, arm := range q.Unions {
		armNode, armPort, armSchema, err := p.planSelectCore(arm.Select)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("union arm %d: %w", i+1, err)
		}
		mode := operator.SetUnion
		if arm.All {
			mode = operator.SetUnionAll
		}
		factory := &operator.SetFactory{Mode: mode}
		schema, err = factory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{
			operator.PortLeft: schema, operator.PortRight: armSchema,
		})
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("union arm %d: %w", i+1, err)
		}
		handle := p.next("set")
		if err := p.dag.AddProcessor(handle, factory); err != nil {
			return "", 0, types.Schema{}, err
		}
		if err := p.dag.Connect(dag.Endpoint{Node: node, Port: port}, dag.Endpoint{Node: handle, Port: operator.PortLeft}); err != nil {
			return "", 0, types.Schema{}, err
		}
		if err := p.dag.Connect(dag.Endpoint{Node: armNode, Port: armPort}, dag.Endpoint{Node: handle, Port: operator.PortRight}); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port = handle, operator.PortDefault
	}

	return node, port, schema, nil
}

func (p *planner) next(prefix string) dag.NodeHandle {
	p.seq++
	return dag.NodeHandle(fmt.Sprintf("sql_%s_%d", prefix, p.seq))
}

func (p *planner) planSelectCore(core *SelectCore) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	node, port, schema, err := p.planFrom(core.From)
	if err != nil {
		return "", 0, types.Schema{}, err
	}

	if core.Where != nil {
		b := newBuilder(schema, p.udfs)
		pred, err := b.expr(core.Where)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("WHERE: %w", err)
		}
		factory := &operator.SelectionFactory{Predicate: pred}
		handle := p.next("where")
		if err := p.wireSingle(handle, factory, node, port); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port = handle, operator.PortDefault
		// Selection preserves its input schema unchanged.
	}

	h := &hoister{schema: schema, udfs: p.udfs}
	for _, item := range core.Items {
		if item.Star {
			continue
		}
		if err := h.walkExpr(item.Expr); err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("SELECT item: %w", err)
		}
	}
	if core.Having != nil {
		if err := h.walkExpr(core.Having); err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("HAVING: %w", err)
		}
	}

	if len(h.specs) == 0 && len(core.GroupBy) == 0 {
		return p.planProjection(core, node, port, schema)
	}
	return p.planAggregation(core, node, port, schema, h)
}

func (p *planner) wireSingle(handle dag.NodeHandle, factory dag.ProcessorFactory, fromNode dag.NodeHandle, fromPort dag.PortHandle) error {
	if err := p.dag.AddProcessor(handle, factory); err != nil {
		return err
	}
	return p.dag.Connect(dag.Endpoint{Node: fromNode, Port: fromPort}, dag.Endpoint{Node: handle, Port: operator.PortDefault})
}

// planFrom resolves the FROM clause: the base table (optionally windowed),
// followed by a chain of equi-joins, one Product operator per join.
func (p *planner) planFrom(from *FromClause) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	node, port, schema, err := p.resolveTableRef(from.Table)
	if err != nil {
		return "", 0, types.Schema{}, err
	}

	for i, join := range from.Joins {
		rNode, rPort, rSchema, err := p.resolveTableRef(join.Table)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("join %d: %w", i+1, err)
		}
		leftKeys, rightKeys, err := p.buildJoinKeys(join.On, schema, rSchema)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("join %d: %w", i+1, err)
		}
		factory := &operator.ProductFactory{LeftKeys: leftKeys, RightKeys: rightKeys}
		outSchema, err := factory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{
			operator.PortLeft: schema, operator.PortRight: rSchema,
		})
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("join %d: %w", i+1, err)
		}
		handle := p.next("join")
		if err := p.dag.AddProcessor(handle, factory); err != nil {
			return "", 0, types.Schema{}, err
		}
		if err := p.dag.Connect(dag.Endpoint{Node: node, Port: port}, dag.Endpoint{Node: handle, Port: operator.PortLeft}); err != nil {
			return "", 0, types.Schema{}, err
		}
		if err := p.dag.Connect(dag.Endpoint{Node: rNode, Port: rPort}, dag.Endpoint{Node: handle, Port: operator.PortRight}); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port, schema = handle, operator.PortDefault, outSchema
	}

	return node, port, schema, nil
}

// resolveTableRef resolves a plain, TUMBLE-wrapped, or HOP-wrapped table
// reference to a node/port/schema, qualifying the schema's field names
// with the reference's alias (or bare table name) so joins can disambiguate
// same-named columns from either side.
func (p *planner) resolveTableRef(ref *TableRef) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	var tableName string
	switch {
	case ref.Tumble != nil:
		tableName = ref.Tumble.Table
	case ref.Hop != nil:
		tableName = ref.Hop.Table
	default:
		tableName = ref.Name
	}

	binding, ok := p.sources[tableName]
	if !ok {
		return "", 0, types.Schema{}, fmt.Errorf("sql: unknown table %q", tableName)
	}
	node, port, schema := binding.Node, binding.Port, binding.Schema

	switch {
	case ref.Tumble != nil:
		col, err := resolveColumn(schema, ref.Tumble.Column)
		if err != nil {
			return "", 0, types.Schema{}, err
		}
		size, err := time.ParseDuration(unquoteSQLString(ref.Tumble.Interval))
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("TUMBLE interval: %w", err)
		}
		factory := &operator.WindowFactory{Kind: operator.WindowTumble, Column: col, Size: size}
		outSchema, err := factory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: schema})
		if err != nil {
			return "", 0, types.Schema{}, err
		}
		handle := p.next("tumble")
		if err := p.wireSingle(handle, factory, node, port); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port, schema = handle, operator.PortDefault, outSchema

	case ref.Hop != nil:
		col, err := resolveColumn(schema, ref.Hop.Column)
		if err != nil {
			return "", 0, types.Schema{}, err
		}
		hop, err := time.ParseDuration(unquoteSQLString(ref.Hop.Hop))
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("HOP hop interval: %w", err)
		}
		size, err := time.ParseDuration(unquoteSQLString(ref.Hop.Interval))
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("HOP window interval: %w", err)
		}
		factory := &operator.WindowFactory{Kind: operator.WindowHop, Column: col, Hop: hop, Size: size}
		outSchema, err := factory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: schema})
		if err != nil {
			return "", 0, types.Schema{}, err
		}
		handle := p.next("hop")
		if err := p.wireSingle(handle, factory, node, port); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port, schema = handle, operator.PortDefault, outSchema
	}

	alias := ref.Alias
	if alias == "" {
		alias = tableName
	}
	return node, port, qualifySchema(schema, alias), nil
}

// qualifySchema renames every field to "alias.originalName", still
// resolvable by resolveColumn's unqualified suffix match.
func qualifySchema(schema types.Schema, alias string) types.Schema {
	fields := make([]types.FieldDefinition, len(schema.Fields))
	for i, f := range schema.Fields {
		f.Name = alias + "." + f.Name
		fields[i] = f
	}
	return types.Schema{ID: schema.ID, Version: schema.Version, Fields: fields, PrimaryIndex: schema.PrimaryIndex}
}

// buildJoinKeys decomposes an ON clause into parallel left/right key
// expression lists for operator.ProductFactory. It requires a flat AND
// chain of "=" comparisons; OR and NOT are rejected as ambiguous for an
// equi-join.
func (p *planner) buildJoinKeys(on *Expr, leftSchema, rightSchema types.Schema) ([]expr.Expression, []expr.Expression, error) {
	comparisons, err := splitAndEqualities(on)
	if err != nil {
		return nil, nil, err
	}
	var leftKeys, rightKeys []expr.Expression
	for i, cmp := range comparisons {
		if cmp.Op != "=" || cmp.Right == nil {
			return nil, nil, fmt.Errorf("join condition %d: only \"=\" comparisons are allowed", i+1)
		}
		lIsLeft, lex, lerr := p.resolveJoinOperand(cmp.Left, leftSchema, rightSchema)
		rIsLeft, rex, rerr := p.resolveJoinOperand(cmp.Right, leftSchema, rightSchema)
		if lerr != nil {
			return nil, nil, fmt.Errorf("join condition %d: %w", i+1, lerr)
		}
		if rerr != nil {
			return nil, nil, fmt.Errorf("join condition %d: %w", i+1, rerr)
		}
		if lIsLeft == rIsLeft {
			return nil, nil, fmt.Errorf("join condition %d must equate a left-side column with a right-side column", i+1)
		}
		if lIsLeft {
			leftKeys = append(leftKeys, lex)
			rightKeys = append(rightKeys, rex)
		} else {
			leftKeys = append(leftKeys, rex)
			rightKeys = append(rightKeys, lex)
		}
	}
	return leftKeys, rightKeys, nil
}

func (p *planner) resolveJoinOperand(a *Additive, leftSchema, rightSchema types.Schema) (isLeft bool, ex expr.Expression, err error) {
	lb := newBuilder(leftSchema, p.udfs)
	if lex, lerr := lb.additive(a); lerr == nil {
		return true, lex, nil
	} else {
		rb := newBuilder(rightSchema, p.udfs)
		if rex, rerr := rb.additive(a); rerr == nil {
			return false, rex, nil
		}
		return false, nil, fmt.Errorf("resolves against neither side of the join: %v", lerr)
	}
}

// splitAndEqualities flattens an ON clause's top-level AND chain into its
// individual comparisons, rejecting any OR or NOT.
func splitAndEqualities(on *Expr) ([]*Comparison, error) {
	if len(on.Or) != 0 {
		return nil, fmt.Errorf("OR is not supported in a join condition")
	}
	nots := append([]*NotExpr{on.Left.Left}, on.Left.And...)
	out := make([]*Comparison, 0, len(nots))
	for _, n := range nots {
		if n.Not {
			return nil, fmt.Errorf("NOT is not supported in a join condition")
		}
		out = append(out, n.Expr)
	}
	return out, nil
}

// planProjection handles a SELECT with no GROUP BY and no aggregates: a
// single Projection evaluating each item (or, for "*", every input column)
// against the FROM/WHERE output schema.
func (p *planner) planProjection(core *SelectCore, node dag.NodeHandle, port dag.PortHandle, schema types.Schema) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	b := newBuilder(schema, p.udfs)
	var exprs []expr.Expression
	var names []string
	for _, item := range core.Items {
		if item.Star {
			for i, f := range schema.Fields {
				exprs = append(exprs, &expr.Column{Index: i})
				name := f.Name
				if dot := strings.LastIndex(name, "."); dot >= 0 {
					name = name[dot+1:]
				}
				names = append(names, name)
			}
			continue
		}
		ex, err := b.expr(item.Expr)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("SELECT item: %w", err)
		}
		exprs = append(exprs, ex)
		names = append(names, projectionName(item))
	}
	factory := &operator.ProjectionFactory{Expressions: exprs, Names: names}
	outSchema, err := factory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: schema})
	if err != nil {
		return "", 0, types.Schema{}, err
	}
	handle := p.next("select")
	if err := p.wireSingle(handle, factory, node, port); err != nil {
		return "", 0, types.Schema{}, err
	}
	return handle, operator.PortDefault, outSchema, nil
}

func projectionName(item *SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if bare := asBareIdentExpr(item.Expr); bare != nil && bare.Args == nil {
		if bare.Dot != "" {
			return bare.Dot
		}
		return bare.Name
	}
	return ""
}

// planAggregation handles a SELECT with GROUP BY and/or aggregate
// functions: pre-aggregation Projection -> Aggregation -> (HAVING as a
// Selection) -> post-aggregation Projection.
func (p *planner) planAggregation(core *SelectCore, node dag.NodeHandle, port dag.PortHandle, preSchema types.Schema, h *hoister) (dag.NodeHandle, dag.PortHandle, types.Schema, error) {
	b := newBuilder(preSchema, p.udfs)

	groupByBuilt := make([]expr.Expression, len(core.GroupBy))
	groupByNames := make([]string, len(core.GroupBy))
	for i, g := range core.GroupBy {
		ex, err := b.expr(g)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("GROUP BY %d: %w", i+1, err)
		}
		groupByBuilt[i] = ex
		if bare := asBareIdentExpr(g); bare != nil && bare.Args == nil {
			if bare.Dot != "" {
				groupByNames[i] = bare.Dot
			} else {
				groupByNames[i] = bare.Name
			}
		}
	}

	preAggExprs := append([]expr.Expression{}, groupByBuilt...)
	outputs := make([]operator.AggregateSpec, len(h.specs))
	for i, spec := range h.specs {
		argIdx := make([]expr.Expression, len(spec.Args))
		for j, a := range spec.Args {
			pos := len(preAggExprs)
			preAggExprs = append(preAggExprs, a)
			argIdx[j] = &expr.Column{Index: pos}
		}
		outputs[i] = operator.AggregateSpec{Fun: spec.Fun, Args: argIdx, Name: spec.Name}
	}

	preAggFactory := &operator.ProjectionFactory{Expressions: preAggExprs}
	preAggSchema, err := preAggFactory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: preSchema})
	if err != nil {
		return "", 0, types.Schema{}, fmt.Errorf("pre-aggregation projection: %w", err)
	}
	preAggHandle := p.next("preagg")
	if err := p.wireSingle(preAggHandle, preAggFactory, node, port); err != nil {
		return "", 0, types.Schema{}, err
	}

	groupByCols := make([]expr.Expression, len(groupByBuilt))
	for i := range groupByBuilt {
		groupByCols[i] = &expr.Column{Index: i}
	}
	aggFactory := &operator.AggregationFactory{GroupBy: groupByCols, Outputs: outputs}
	aggSchema, err := aggFactory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: preAggSchema})
	if err != nil {
		return "", 0, types.Schema{}, fmt.Errorf("aggregation: %w", err)
	}
	aggHandle := p.next("agg")
	if err := p.wireSingle(aggHandle, aggFactory, preAggHandle, operator.PortDefault); err != nil {
		return "", 0, types.Schema{}, err
	}

	// Renamed view of the aggregation's output schema used only for
	// resolving HAVING/post-projection references by name: group-by
	// columns keep their original bare name (when they had one) so
	// "GROUP BY category" lets later clauses say "category"; aggregate
	// outputs are addressed by the synthetic name the hoister assigned.
	renamedFields := make([]types.FieldDefinition, len(aggSchema.Fields))
	copy(renamedFields, aggSchema.Fields)
	for i, name := range groupByNames {
		if name != "" {
			renamedFields[i].Name = name
		} else {
			renamedFields[i].Name = fmt.Sprintf("group_%d", i)
		}
	}
	for i, spec := range h.specs {
		renamedFields[len(groupByBuilt)+i].Name = spec.Name
	}
	renamedSchema := types.Schema{ID: aggSchema.ID, Version: aggSchema.Version, Fields: renamedFields, PrimaryIndex: aggSchema.PrimaryIndex}

	node, port, schema := aggHandle, operator.PortDefault, renamedSchema

	if core.Having != nil {
		hb := newBuilder(renamedSchema, p.udfs)
		pred, err := hb.expr(core.Having)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("HAVING: %w", err)
		}
		factory := &operator.SelectionFactory{Predicate: pred}
		handle := p.next("having")
		if err := p.wireSingle(handle, factory, node, operator.PortDefault); err != nil {
			return "", 0, types.Schema{}, err
		}
		node, port = handle, operator.PortDefault
	}

	pb := newBuilder(renamedSchema, p.udfs)
	var postExprs []expr.Expression
	var postNames []string
	for _, item := range core.Items {
		if item.Star {
			return "", 0, types.Schema{}, fmt.Errorf("SELECT * is not supported with GROUP BY")
		}
		ex, err := pb.expr(item.Expr)
		if err != nil {
			return "", 0, types.Schema{}, fmt.Errorf("SELECT item: %w", err)
		}
		postExprs = append(postExprs, ex)
		postNames = append(postNames, projectionName(item))
	}
	postFactory := &operator.ProjectionFactory{Expressions: postExprs, Names: postNames}
	postSchema, err := postFactory.OutputSchema(operator.PortDefault, map[dag.PortHandle]types.Schema{operator.PortDefault: renamedSchema})
	if err != nil {
		return "", 0, types.Schema{}, err
	}
	postHandle := p.next("aggselect")
	if err := p.wireSingle(postHandle, postFactory, node, port); err != nil {
		return "", 0, types.Schema{}, err
	}

	// Schema derivation: the post-aggregation schema's primary index is
	// the group-by columns iff every group-by expression is a pure column
	// reference that also appears, unchanged, in the projection.
	var primary []int
	allMatched := len(groupByNames) > 0
	for _, name := range groupByNames {
		if name == "" {
			allMatched = false
			break
		}
		pos := -1
		for j, item := range core.Items {
			if item.Star {
				continue
			}
			if bare := asBareIdentExpr(item.Expr); bare != nil && bare.Args == nil {
				itemName := bare.Name
				if bare.Dot != "" {
					itemName = bare.Dot
				}
				if strings.EqualFold(itemName, name) {
					pos = j
					break
				}
			}
		}
		if pos < 0 {
			allMatched = false
			break
		}
		primary = append(primary, pos)
	}
	if allMatched {
		postSchema.PrimaryIndex = primary
	}

	return postHandle, operator.PortDefault, postSchema, nil
}

// asBareIdentExpr descends through every precedence level, returning the
// identifier at the bottom only if no operator was applied at any level.
func asBareIdentExpr(e *Expr) *IdentExpr {
	p := asBarePrimary(e)
	if p == nil {
		return nil
	}
	return p.Ref
}
