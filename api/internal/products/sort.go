package products

import (
	"sort"
	"strings"
)

type Direction int

const (
	Ascending Direction = iota
	Descending
)

// ParseDirection reads "asc"/"desc"; anything else is Ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return Descending
	}
	return Ascending
}

// SortByPrice orders ps in place by numeric price in dir. Entries without a
// numeric price always follow priced ones, ordered by name.
func SortByPrice(ps []Product, dir Direction) {
	sort.SliceStable(ps, func(i, j int) bool {
		pi, iok := NumericPrice(ps[i])
		pj, jok := NumericPrice(ps[j])
		switch {
		case iok && jok:
			if pi == pj {
				return false
			}
			if dir == Descending {
				return pi > pj
			}
			return pi < pj
		case iok != jok:
			return iok
		default:
			return strings.ToLower(ps[i].Name) < strings.ToLower(ps[j].Name)
		}
	})
}
