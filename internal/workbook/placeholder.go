package workbook

import "strings"

const tablePrefix = "table:"

// placeholder is a parsed ${key.field} or ${table:key.field} cell.
type placeholder struct {
	Table bool
	Key   string
	Field string
}

// parsePlaceholder recognises a cell whose entire content is a placeholder.
func parsePlaceholder(s string) (placeholder, bool) {
	inner, ok := strings.CutPrefix(s, "${")
	if !ok {
		return placeholder{}, false
	}
	inner, ok = strings.CutSuffix(inner, "}")
	if !ok {
		return placeholder{}, false
	}

	var p placeholder
	if rest, table := strings.CutPrefix(inner, tablePrefix); table {
		p.Table = true
		inner = rest
	}
	i := strings.LastIndexByte(inner, '.')
	if i <= 0 || i == len(inner)-1 {
		return placeholder{}, false
	}
	p.Key, p.Field = inner[:i], inner[i+1:]
	if strings.ContainsAny(p.Key, "${}") || strings.ContainsAny(p.Field, "${}") {
		return placeholder{}, false
	}
	return p, true
}
