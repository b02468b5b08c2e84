package engine

import "github.com/paulmach/orb/geojson"

// Expr is a style expression in its JSON array form.
type Expr []any

// Get reads a feature property.
func Get(prop string) Expr { return Expr{"get", prop} }

// Has tests for a feature property.
func Has(prop string) Expr { return Expr{"has", prop} }

// NotHas tests for the absence of a feature property.
func NotHas(prop string) Expr { return Expr{"!has", prop} }

// Step maps input onto base below the first stop and onto the output of the
// highest stop not above it. stops alternate threshold, output.
func Step(input Expr, base any, stops ...any) Expr {
	return append(Expr{"step", input, base}, stops...)
}

// Match returns out when input equals label, fallback otherwise.
func Match(input Expr, label, out, fallback any) Expr {
	return Expr{"match", input, label, out, fallback}
}

// Matches evaluates a filter against feature properties. Only the has, !has
// and == forms are understood; a nil filter matches everything.
func Matches(filter Expr, f *geojson.Feature) bool {
	if len(filter) == 0 {
		return true
	}
	op, _ := filter[0].(string)
	switch op {
	case "has":
		_, ok := f.Properties[propName(filter)]
		return ok
	case "!has":
		_, ok := f.Properties[propName(filter)]
		return !ok
	case "==":
		if len(filter) != 3 {
			return false
		}
		return valueOf(filter[1], f) == valueOf(filter[2], f)
	}
	return true
}

func propName(filter Expr) string {
	if len(filter) < 2 {
		return ""
	}
	s, _ := filter[1].(string)
	return s
}

func valueOf(v any, f *geojson.Feature) any {
	switch e := v.(type) {
	case Expr:
		if len(e) == 2 && e[0] == "get" {
			if name, ok := e[1].(string); ok {
				return normalize(f.Properties[name])
			}
		}
	case []any:
		return valueOf(Expr(e), f)
	}
	return normalize(v)
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}

// EvalMatch evaluates a match expression built by Match for a feature.
func EvalMatch(expr Expr, f *geojson.Feature) (any, bool) {
	if len(expr) != 5 || expr[0] != "match" {
		return nil, false
	}
	if valueOf(expr[1], f) == normalize(expr[2]) {
		return expr[3], true
	}
	return expr[4], true
}
