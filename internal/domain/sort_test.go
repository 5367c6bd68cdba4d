package domain

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rankedProducts() []Product {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Product{
		{ID: "a", Rank: 3, CreatedAt: base.Add(1 * time.Hour)},
		{ID: "b", Rank: 1, CreatedAt: base.Add(3 * time.Hour)},
		{ID: "c", Rank: 2, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestResolveSort(t *testing.T) {
	tests := []struct {
		name        string
		createdTime string
		rank        string
		want        SortOptions
	}{
		{"none", "", "", SortOptions{}},
		{"created asc", "asc", "", SortOptions{Key: SortCreatedTime, Direction: Ascending}},
		{"created desc uppercase", "DESC", "", SortOptions{Key: SortCreatedTime, Direction: Descending}},
		{"rank wins", "asc", "desc", SortOptions{Key: SortRank, Direction: Descending}},
		{"invalid rank falls through", "desc", "sideways", SortOptions{Key: SortCreatedTime, Direction: Descending}},
		{"both invalid", "up", "down", SortOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSort(tt.createdTime, tt.rank))
		})
	}
}

func TestSortProducts_Rank(t *testing.T) {
	asc := SortProducts(rankedProducts(), SortOptions{Key: SortRank, Direction: Ascending})
	desc := SortProducts(rankedProducts(), SortOptions{Key: SortRank, Direction: Descending})

	assert.Equal(t, []string{"b", "c", "a"}, ids(asc))

	reversed := ids(asc)
	slices.Reverse(reversed)
	assert.Equal(t, reversed, ids(desc))
}

func TestSortProducts_CreatedTime(t *testing.T) {
	asc := SortProducts(rankedProducts(), SortOptions{Key: SortCreatedTime, Direction: Ascending})
	desc := SortProducts(rankedProducts(), SortOptions{Key: SortCreatedTime, Direction: Descending})

	assert.Equal(t, []string{"a", "c", "b"}, ids(asc))
	assert.Equal(t, []string{"b", "c", "a"}, ids(desc))
}

func TestSortProducts_DefaultKeepsOrderAndDoesNotMutate(t *testing.T) {
	in := rankedProducts()
	out := SortProducts(in, SortOptions{})
	assert.Equal(t, ids(in), ids(out))

	_ = SortProducts(in, SortOptions{Key: SortRank, Direction: Ascending})
	assert.Equal(t, []string{"a", "b", "c"}, ids(in))
}

func TestSortProducts_TiesKeepInputOrder(t *testing.T) {
	in := []Product{{ID: "x", Rank: 1}, {ID: "y", Rank: 1}, {ID: "z", Rank: 0}}
	asc := SortProducts(in, SortOptions{Key: SortRank, Direction: Ascending})
	assert.Equal(t, []string{"z", "x", "y"}, ids(asc))
}
