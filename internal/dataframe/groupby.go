package dataframe

import (
	"github.com/paveg/featurekit/internal/errors"
)

// Group is one distinct key of a grouping column together with the rows holding it
type Group struct {
	Key  string
	Rows []int
}

// Groups partitions the rows of a DataFrame by the values of one column.
// Groups are kept in the order their key first appears; null keys form no group.
type Groups struct {
	df     *DataFrame
	column string
	index  *HashIndex
}

// GroupBy partitions df by column
func (df *DataFrame) GroupBy(column string) (*Groups, error) {
	col, exists := df.columns[column]
	if !exists {
		return nil, errors.NewColumnNotFoundError("GroupBy", column)
	}

	index := NewHashIndex(df.Len())
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		index.Put(col.GetAsString(i), i)
	}

	return &Groups{df: df, column: column, index: index}, nil
}

// Column returns the grouping column name
func (g *Groups) Column() string {
	return g.column
}

// Len returns the number of groups
func (g *Groups) Len() int {
	return g.index.Len()
}

// Groups returns every group in first-appearance order
func (g *Groups) Groups() []Group {
	keys := g.index.Keys()
	groups := make([]Group, 0, len(keys))
	for _, key := range keys {
		rows, _ := g.index.Get(key)
		groups = append(groups, Group{Key: key, Rows: append([]int(nil), rows...)})
	}
	return groups
}

// Rows returns the rows of the group with the given key
func (g *Groups) Rows(key string) ([]int, bool) {
	rows, ok := g.index.Get(key)
	if !ok {
		return nil, false
	}
	return append([]int(nil), rows...), true
}

// Count returns the number of rows per group key
func (g *Groups) Count() map[string]int64 {
	counts := make(map[string]int64, g.index.Len())
	for _, key := range g.index.Keys() {
		rows, _ := g.index.Get(key)
		counts[key] = int64(len(rows))
	}
	return counts
}
