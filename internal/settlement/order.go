// Package settlement orders raw settlement rows and normalises their locale
// formatted numbers.
package settlement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"settleflow/models"
)

// Fallback decides how rows without a parsable settlementMonth are ordered
// among themselves. They always come after dated rows and before TOTAL.
type Fallback string

const (
	// FallbackDisplay orders undated rows by their upper-cased month label.
	FallbackDisplay Fallback = "display"
	// FallbackInsertion keeps undated rows in the order the source sent them.
	FallbackInsertion Fallback = "insertion"
)

// ParseFallback validates a configured fallback. Empty selects FallbackDisplay.
func ParseFallback(s string) (Fallback, error) {
	switch Fallback(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackDisplay:
		return FallbackDisplay, nil
	case FallbackInsertion:
		return FallbackInsertion, nil
	default:
		return "", fmt.Errorf("unknown ordering fallback %q", s)
	}
}

const monthLayout = "2006-01-02"

const (
	rankDated = iota
	rankUndated
	rankTotal
)

type sortKey struct {
	rank  int
	date  time.Time
	label string
}

// Order returns the rows sorted by settlementMonth. TOTAL rows are always
// last; equal keys keep their relative order. The input is not modified.
func Order(rows []models.RawSettlement, fallback Fallback) []models.RawSettlement {
	ordered := make([]models.RawSettlement, len(rows))
	copy(ordered, rows)

	keys := make(map[int]sortKey, len(rows))
	idx := make([]int, len(rows))
	for i, r := range rows {
		idx[i] = i
		keys[i] = keyFor(r)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.rank != kb.rank {
			return ka.rank < kb.rank
		}
		switch ka.rank {
		case rankDated:
			return ka.date.Before(kb.date)
		case rankUndated:
			if fallback == FallbackInsertion {
				return false
			}
			return ka.label < kb.label
		}
		return false
	})

	for i, j := range idx {
		ordered[i] = rows[j]
	}
	return ordered
}

func keyFor(r models.RawSettlement) sortKey {
	if r.IsTotal() {
		return sortKey{rank: rankTotal}
	}
	if d, err := time.Parse(monthLayout, strings.TrimSpace(r.SettlementMonth)); err == nil {
		return sortKey{rank: rankDated, date: d}
	}
	return sortKey{rank: rankUndated, label: strings.ToUpper(strings.TrimSpace(r.Month))}
}
