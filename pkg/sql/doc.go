// Package sql parses a SELECT statement (projection list, FROM with joins
// and TUMBLE/HOP windowing, WHERE, GROUP BY, HAVING, UNION) and plans it
// into a sub-DAG of pkg/operator factories wired to named source bindings,
// following the four-phase planning process: FROM resolution, projection
// planning with aggregate hoisting, schema derivation, and operator
// instantiation in Window -> Product (one per join) -> Selection (WHERE) ->
// Projection(pre-agg) -> Aggregation -> Selection (HAVING) ->
// Projection(post-agg) -> Set order. WHERE is applied to the joined rows;
// it is not pushed below a Product. Without GROUP BY or aggregates the
// three aggregation steps are replaced by a single Projection.
package sql
