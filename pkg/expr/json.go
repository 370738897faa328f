package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/weir/pkg/types"
)

// JsonFunction extracts a value at a dotted path from a JSON field, e.g.
// JSON_VALUE(doc, "address.city").
type JsonFunction struct {
	Arg  Expression
	Path string
}

func (j *JsonFunction) GetType(schema types.Schema) (ExpressionType, error) {
	at, err := j.Arg.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	if at.ReturnType != types.FieldTypeJSON {
		return ExpressionType{}, &InvalidArgumentTypeError{Function: "JSON_VALUE", Expected: "json", Actual: at.ReturnType}
	}
	return ExpressionType{ReturnType: types.FieldTypeString, Nullable: true}, nil
}

func (j *JsonFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	v, err := j.Arg.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return types.NullField(types.FieldTypeString), nil
	}
	var doc interface{}
	if err := json.Unmarshal(v.JSONVal, &doc); err != nil {
		return types.Field{}, fmt.Errorf("%w: JSON_VALUE argument is not valid JSON: %v", ErrInvalidArgumentType, err)
	}
	cur := doc
	for _, part := range strings.Split(j.Path, ".") {
		if part == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]interface{}:
			cur = node[part]
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return types.NullField(types.FieldTypeString), nil
			}
			cur = node[idx]
		default:
			return types.NullField(types.FieldTypeString), nil
		}
	}
	if cur == nil {
		return types.NullField(types.FieldTypeString), nil
	}
	switch c := cur.(type) {
	case string:
		return types.StringField(c), nil
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return types.Field{}, err
		}
		return types.StringField(string(b)), nil
	}
}

func (j *JsonFunction) String() string { return fmt.Sprintf("JSON_VALUE(%s,%q)", j.Arg, j.Path) }
