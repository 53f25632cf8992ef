package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is anything the tabular engine can list: it has a unique identifier
// and exposes its fields by key. Field returns nil when the field is absent
// or null.
type Record interface {
	RecordID() string
	Field(key string) any
}

// Row is a record decoded from a backend JSON object.
type Row map[string]any

// RecordID returns the "id" field rendered as a string.
func (r Row) RecordID() string {
	switch v := r["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Field returns the raw value stored under key.
func (r Row) Field(key string) any {
	if r == nil {
		return nil
	}
	return r[key]
}

// String returns the field under key as a string, or "" if it is absent or
// not a string.
func (r Row) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// RowFrom converts any JSON-encodable value into a Row.
func RowFrom(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("model: encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("model: decode row: %w", err)
	}
	return row, nil
}

// Rows converts a slice of records into rows, preserving order.
func Rows[T Record](records []T) ([]Row, error) {
	out := make([]Row, 0, len(records))
	for _, rec := range records {
		row, err := RowFrom(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
