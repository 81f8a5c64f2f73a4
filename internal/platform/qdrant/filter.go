package qdrant

// Filter is the subset of the Qdrant filter language used for scoping searches.
type Filter struct {
	Must []FieldCondition `json:"must,omitempty"`
}

type FieldCondition struct {
	Key   string     `json:"key"`
	Match MatchValue `json:"match"`
}

type MatchValue struct {
	Value any `json:"value"`
}

// MatchKeyword builds a filter requiring payload[key] == value.
func MatchKeyword(key string, value any) *Filter {
	return &Filter{Must: []FieldCondition{{Key: key, Match: MatchValue{Value: value}}}}
}

func (f *Filter) empty() bool {
	return f == nil || len(f.Must) == 0
}
