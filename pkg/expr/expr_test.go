package expr

import (
	"testing"

	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

func schemaOf(fields ...types.FieldDefinition) types.Schema {
	return types.Schema{Fields: fields}
}

func TestColumnGetTypeAndEvaluate(t *testing.T) {
	schema := schemaOf(
		types.FieldDefinition{Name: "id", Type: types.FieldTypeUInt},
		types.FieldDefinition{Name: "name", Type: types.FieldTypeString, Nullable: true},
	)
	record := types.Record{Values: []types.Field{types.UIntField(1), types.StringField("ada")}}

	col := &Column{Index: 1}
	et, err := col.GetType(schema)
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeString, et.ReturnType)
	require.True(t, et.Nullable)

	v, err := col.Evaluate(record, schema)
	require.NoError(t, err)
	require.Equal(t, "ada", v.StrVal)
}

func TestBinaryOperatorArithmeticPromotion(t *testing.T) {
	schema := schemaOf(
		types.FieldDefinition{Name: "a", Type: types.FieldTypeInt},
		types.FieldDefinition{Name: "b", Type: types.FieldTypeFloat},
	)
	record := types.Record{Values: []types.Field{types.IntField(3), types.FloatField(1.5)}}

	expr := &BinaryOperator{Op: OpAdd, Left: &Column{Index: 0}, Right: &Column{Index: 1}}
	et, err := expr.GetType(schema)
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeFloat, et.ReturnType)

	v, err := expr.Evaluate(record, schema)
	require.NoError(t, err)
	require.InDelta(t, 4.5, v.FloatVal, 0.0001)
}

func TestBinaryOperatorNullPropagation(t *testing.T) {
	schema := schemaOf(types.FieldDefinition{Name: "a", Type: types.FieldTypeInt, Nullable: true})
	record := types.Record{Values: []types.Field{types.NullField(types.FieldTypeInt)}}

	expr := &BinaryOperator{Op: OpAdd, Left: &Column{Index: 0}, Right: &Literal{Value: types.IntField(1)}}
	v, err := expr.Evaluate(record, schema)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestBinaryOperatorStringComparisonIsByteLexicographic(t *testing.T) {
	expr := &BinaryOperator{
		Op:    OpLt,
		Left:  &Literal{Value: types.StringField("apple")},
		Right: &Literal{Value: types.StringField("banana")},
	}
	v, err := expr.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.True(t, v.BoolVal)
}

func TestBinaryOperatorDivisionByZeroOverflows(t *testing.T) {
	expr := &BinaryOperator{
		Op:    OpDiv,
		Left:  &Literal{Value: types.IntField(1)},
		Right: &Literal{Value: types.IntField(0)},
	}
	_, err := expr.Evaluate(types.Record{}, types.Schema{})
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUnaryOperatorNot(t *testing.T) {
	expr := &UnaryOperator{Op: UnaryNot, Arg: &Literal{Value: types.BoolField(false)}}
	v, err := expr.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.True(t, v.BoolVal)
}

func TestCaseWhenFirstMatchingBranch(t *testing.T) {
	cw := &CaseWhen{
		Branches: []CaseBranch{
			{When: &Literal{Value: types.BoolField(false)}, Then: &Literal{Value: types.IntField(1)}},
			{When: &Literal{Value: types.BoolField(true)}, Then: &Literal{Value: types.IntField(2)}},
		},
		Else: &Literal{Value: types.IntField(3)},
	}
	v, err := cw.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, int64(2), v.IntVal)
}

func TestConditionalCoalesceReturnsFirstNonNull(t *testing.T) {
	c := &ConditionalFunction{
		Fun: ConditionalCoalesce,
		Args: []Expression{
			&Literal{Value: types.NullField(types.FieldTypeString)},
			&Literal{Value: types.StringField("fallback")},
		},
	}
	v, err := c.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, "fallback", v.StrVal)
}

func TestConditionalNullIfReturnsNullWhenEqual(t *testing.T) {
	c := &ConditionalFunction{
		Fun:  ConditionalNullIf,
		Args: []Expression{&Literal{Value: types.IntField(5)}, &Literal{Value: types.IntField(5)}},
	}
	v, err := c.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestCastStringToInt(t *testing.T) {
	c := &Cast{Type: types.FieldTypeInt, Arg: &Literal{Value: types.StringField("42")}}
	v, err := c.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, int64(42), v.IntVal)
}

func TestCastStringToDecimal(t *testing.T) {
	c := &Cast{Type: types.FieldTypeDecimal, Arg: &Literal{Value: types.StringField("19.99")}}
	v, err := c.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeDecimal, v.Type)
	require.Equal(t, "19.99", v.DecVal.String())
}

func TestCastStringToDecimalRejectsMalformedLiteral(t *testing.T) {
	c := &Cast{Type: types.FieldTypeDecimal, Arg: &Literal{Value: types.StringField("not-a-number")}}
	_, err := c.Evaluate(types.Record{}, types.Schema{})
	require.Error(t, err)
}

func TestCastIntToDecimal(t *testing.T) {
	c := &Cast{Type: types.FieldTypeDecimal, Arg: &Literal{Value: types.IntField(42)}}
	v, err := c.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeDecimal, v.Type)
	require.Equal(t, "42", v.DecVal.String())
}

func TestScalarRoundWithoutPrecisionRoundsToInteger(t *testing.T) {
	s := &ScalarFunction{Fun: ScalarRound, Args: []Expression{&Literal{Value: types.FloatField(3.7)}}}
	v, err := s.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, int64(4), v.IntVal)
}

func TestScalarConcat(t *testing.T) {
	s := &ScalarFunction{Fun: ScalarConcat, Args: []Expression{
		&Literal{Value: types.StringField("foo")}, &Literal{Value: types.StringField("bar")},
	}}
	v, err := s.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.Equal(t, "foobar", v.StrVal)
}

func TestAggregateFunctionGetTypeSum(t *testing.T) {
	schema := schemaOf(types.FieldDefinition{Name: "amount", Type: types.FieldTypeInt})
	agg := &AggregateFunction{Fun: AggregateSum, Args: []Expression{&Column{Index: 0}}}
	et, err := agg.GetType(schema)
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeInt, et.ReturnType)
	require.True(t, IsAggregate(agg))
}

func TestGeoDistance(t *testing.T) {
	g := &GeoFunction{Fun: GeoDistance, Args: []Expression{
		&Literal{Value: types.PointField(types.Point{X: 0, Y: 0})},
		&Literal{Value: types.PointField(types.Point{X: 0, Y: 0})},
	}}
	v, err := g.Evaluate(types.Record{}, types.Schema{})
	require.NoError(t, err)
	require.InDelta(t, 0, v.FloatVal, 0.0001)
}
