package model

import "sort"

// Count is the tally of one key (a grid cell, a country, an organization).
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Counts is a deterministic frequency table: Items are sorted by count
// descending, then key ascending.
type Counts struct {
	Items []Count `json:"items"`
	Total int     `json:"total"`
}

// NewCounts builds a Counts from a key->count map, dropping non-positive
// entries.
func NewCounts(m map[string]int) Counts {
	c := Counts{Items: make([]Count, 0, len(m))}
	for k, n := range m {
		if n <= 0 {
			continue
		}
		c.Items = append(c.Items, Count{Key: k, Count: n})
		c.Total += n
	}
	sort.Slice(c.Items, func(i, j int) bool {
		if c.Items[i].Count != c.Items[j].Count {
			return c.Items[i].Count > c.Items[j].Count
		}
		return c.Items[i].Key < c.Items[j].Key
	})
	return c
}

// Len returns the number of distinct keys.
func (c Counts) Len() int { return len(c.Items) }

// Shares returns count/total for every item, in Items order.
func (c Counts) Shares() []float64 {
	out := make([]float64, len(c.Items))
	if c.Total == 0 {
		return out
	}
	for i, it := range c.Items {
		out[i] = float64(it.Count) / float64(c.Total)
	}
	return out
}

// Map returns the table as a key->count map.
func (c Counts) Map() map[string]int {
	m := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		m[it.Key] = it.Count
	}
	return m
}
