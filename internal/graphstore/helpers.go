package graphstore

import "secondbrain/internal/concept"

// canonicalName delegates to the shared concept package so the
// graph store's MERGE key and the orchestrator's dedup key never drift
// apart (spec.md §4.8).
func canonicalName(raw string) string {
	return concept.CanonicalName(raw)
}

// toFloat64Slice converts an embedding to the []float64 the Neo4j
// driver's bolt encoder expects; Go's float32 has no wire representation.
func toFloat64Slice(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// flattenMetadata drops non-scalar values, since Neo4j properties
// cannot hold nested maps; nested structures belong in the relational
// or vault store instead.
func flattenMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, bool, int, int64, float64, float32:
			out[k] = v
		}
	}
	return out
}

func appendUnique(existing []string, candidate string) []string {
	for _, e := range existing {
		if e == candidate {
			return existing
		}
	}
	return append(existing, candidate)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
