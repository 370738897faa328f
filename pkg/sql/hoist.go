package sql

import (
	"fmt"
	"strings"

	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
)

// hoister walks a projection or HAVING expression tree looking for
// aggregate function calls, extracting each into an operator.AggregateSpec
// built against the pre-aggregation schema and mutating the call site in
// place into a synthetic column reference ("agg_N") that the planner's
// renamed post-aggregation schema resolves back to the aggregation's
// output column. It does not recurse into an aggregate's own arguments —
// those belong to the pre-aggregation schema, not the post-aggregation one
// the rest of the tree is being resolved against.
type hoister struct {
	schema types.Schema
	udfs   map[string]UdfSpec
	specs  []operator.AggregateSpec
}

func (h *hoister) walkExpr(e *Expr) error {
	if err := h.walkAnd(e.Left); err != nil {
		return err
	}
	for _, a := range e.Or {
		if err := h.walkAnd(a); err != nil {
			return err
		}
	}
	return nil
}

func (h *hoister) walkAnd(a *AndExpr) error {
	if err := h.walkNot(a.Left); err != nil {
		return err
	}
	for _, n := range a.And {
		if err := h.walkNot(n); err != nil {
			return err
		}
	}
	return nil
}

func (h *hoister) walkNot(n *NotExpr) error { return h.walkComparison(n.Expr) }

func (h *hoister) walkComparison(c *Comparison) error {
	if err := h.walkAdditive(c.Left); err != nil {
		return err
	}
	if c.Right != nil {
		return h.walkAdditive(c.Right)
	}
	return nil
}

func (h *hoister) walkAdditive(a *Additive) error {
	if err := h.walkMultiplicative(a.Left); err != nil {
		return err
	}
	for _, r := range a.Rest {
		if err := h.walkMultiplicative(r.Right); err != nil {
			return err
		}
	}
	return nil
}

func (h *hoister) walkMultiplicative(m *Multiplicative) error {
	if err := h.walkUnary(m.Left); err != nil {
		return err
	}
	for _, r := range m.Rest {
		if err := h.walkUnary(r.Right); err != nil {
			return err
		}
	}
	return nil
}

func (h *hoister) walkUnary(u *Unary) error { return h.walkPrimary(u.Operand) }

func (h *hoister) walkPrimary(p *Primary) error {
	switch {
	case p.Paren != nil:
		return h.walkExpr(p.Paren)
	case p.Case != nil:
		for _, wt := range p.Case.Branches {
			if err := h.walkExpr(wt.When); err != nil {
				return err
			}
			if err := h.walkExpr(wt.Then); err != nil {
				return err
			}
		}
		if p.Case.Else != nil {
			return h.walkExpr(p.Case.Else)
		}
		return nil
	case p.Cast != nil:
		return h.walkExpr(p.Cast.Arg)
	case p.Ref != nil:
		return h.walkIdent(p.Ref)
	default:
		return nil
	}
}

func (h *hoister) walkIdent(r *IdentExpr) error {
	if r.Args == nil {
		return nil
	}
	fun, isAggregate := aggregateFuncByName(r.Name)
	if !isAggregate {
		for _, a := range r.Args.Args {
			if err := h.walkExpr(a); err != nil {
				return err
			}
		}
		return nil
	}

	var args []expr.Expression
	if r.Args.Star {
		if !strings.EqualFold(r.Name, "COUNT") {
			return fmt.Errorf("%s(*) is not supported; only COUNT(*) may take *", r.Name)
		}
	} else {
		b := newBuilder(h.schema, h.udfs)
		built, err := b.args(r.Args)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", r.Name, err)
		}
		args = built
	}

	name := fmt.Sprintf("agg_%d", len(h.specs))
	h.specs = append(h.specs, operator.AggregateSpec{Fun: fun, Args: args, Name: name})
	*r = IdentExpr{Name: name}
	return nil
}
