package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortKey names the product attribute a listing is ordered by.
type SortKey string

const (
	SortDefault     SortKey = ""
	SortCreatedTime SortKey = "created_time"
	SortRank        SortKey = "rank"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// ParseDirection accepts "asc" or "desc" in any case.
func ParseDirection(s string) (SortDirection, bool) {
	switch SortDirection(strings.ToLower(strings.TrimSpace(s))) {
	case Ascending:
		return Ascending, true
	case Descending:
		return Descending, true
	default:
		return "", false
	}
}

// SortOptions is the resolved ordering for a product listing.
type SortOptions struct {
	Key       SortKey
	Direction SortDirection
}

// ResolveSort picks the ordering from the created_time and rank parameters.
// Only one key is honored: a valid rank direction wins over created_time.
// Unrecognized directions are ignored, leaving the default order.
func ResolveSort(createdTime, rank string) SortOptions {
	if dir, ok := ParseDirection(rank); ok {
		return SortOptions{Key: SortRank, Direction: dir}
	}
	if dir, ok := ParseDirection(createdTime); ok {
		return SortOptions{Key: SortCreatedTime, Direction: dir}
	}
	return SortOptions{}
}

// SortProducts returns a sorted copy of products. The ascending order is
// stable with respect to the input, and the descending order is its exact
// reverse. SortDefault returns the input order unchanged.
func SortProducts(products []Product, opts SortOptions) []Product {
	out := slices.Clone(products)

	var compare func(a, b Product) int
	switch opts.Key {
	case SortRank:
		compare = func(a, b Product) int { return cmp.Compare(a.Rank, b.Rank) }
	case SortCreatedTime:
		compare = func(a, b Product) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return out
	}

	slices.SortStableFunc(out, compare)
	if opts.Direction == Descending {
		slices.Reverse(out)
	}
	return out
}
