package table

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Compare orders two non-nil field values by their natural ordering:
// numbers numerically, strings lexicographically, false before true, times
// chronologically. Values of different kinds are ordered by kind.
func Compare(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case kindNumber:
		return cmp.Compare(toFloat(a), toFloat(b))
	case kindString:
		return strings.Compare(a.(string), b.(string))
	case kindBool:
		return cmp.Compare(boolRank(a.(bool)), boolRank(b.(bool)))
	case kindTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return strings.Compare(Cell(a), Cell(b))
	}
}

type kind int

const (
	kindBool kind = iota
	kindNumber
	kindTime
	kindString
	kindOther
)

func kindOf(v any) kind {
	switch v.(type) {
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return kindNumber
	case time.Time:
		return kindTime
	case string:
		return kindString
	default:
		return kindOther
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtAny(v any) string {
	return fmt.Sprint(v)
}
