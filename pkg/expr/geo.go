package expr

import (
	"fmt"
	"math"

	"github.com/cuemby/weir/pkg/types"
)

// GeoFunc tags which geo function a GeoFunction node computes.
type GeoFunc int

const (
	GeoDistance GeoFunc = iota
)

// GeoFunction computes a value derived from Point arguments: currently
// great-circle DISTANCE(a, b) in meters, using the haversine formula (the
// same approximation dozer-sql's geo::distance module uses).
type GeoFunction struct {
	Fun  GeoFunc
	Args []Expression
}

const earthRadiusMeters = 6371000.0

func (g *GeoFunction) GetType(schema types.Schema) (ExpressionType, error) {
	if len(g.Args) != 2 {
		return ExpressionType{}, &InvalidArgumentCountError{Function: "DISTANCE", Expected: "2", Actual: len(g.Args)}
	}
	for i, a := range g.Args {
		at, err := a.GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if at.ReturnType != types.FieldTypePoint {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "DISTANCE", ArgumentIndex: i, Expected: "point", Actual: at.ReturnType}
		}
	}
	return ExpressionType{ReturnType: types.FieldTypeFloat, Nullable: true}, nil
}

func (g *GeoFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	a, err := g.Args[0].Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	b, err := g.Args[1].Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	if a.IsNull() || b.IsNull() {
		return types.NullField(types.FieldTypeFloat), nil
	}
	return types.FloatField(haversine(a.PointVal, b.PointVal)), nil
}

func haversine(a, b types.Point) float64 {
	lat1, lat2 := a.Y*math.Pi/180, b.Y*math.Pi/180
	dLat := (b.Y - a.Y) * math.Pi / 180
	dLon := (b.X - a.X) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func (g *GeoFunction) String() string { return fmt.Sprintf("DISTANCE(%s,%s)", g.Args[0], g.Args[1]) }
