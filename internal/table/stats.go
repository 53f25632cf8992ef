package table

import "github.com/pitabwire/maximiza/model"

// Summarize computes summary cards over records. Unknown kinds yield 0.
func Summarize[T model.Record](records []T, defs []model.StatDefinition) []model.StatValue {
	if len(defs) == 0 {
		return nil
	}
	out := make([]model.StatValue, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.StatValue{
			ID:    d.ID,
			Label: d.Label,
			Value: stat(records, d),
		})
	}
	return out
}

func stat[T model.Record](records []T, d model.StatDefinition) int {
	switch d.Kind {
	case model.StatCount:
		if d.Field == "" {
			return len(records)
		}
		n := 0
		for _, r := range records {
			if Cell(r.Field(d.Field)) == d.Value {
				n++
			}
		}
		return n
	case model.StatDistinct:
		seen := make(map[string]struct{})
		for _, r := range records {
			if v := Cell(r.Field(d.Field)); v != "" {
				seen[v] = struct{}{}
			}
		}
		return len(seen)
	}
	return 0
}

// Distinct returns the distinct non-empty display values of field in first
// seen order.
func Distinct[T model.Record](records []T, field string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := Cell(r.Field(field))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
