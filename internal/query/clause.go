package query

import (
	"strings"

	"github.com/rohankatakam/graphogm/internal/filter"
)

// ClauseSet is an assembled statement. It is not modified after it is returned.
type ClauseSet struct {
	Operation string

	// Match holds the comma-separated patterns of the single MATCH clause
	Match []string
	Where string
	// With holds complete WITH clauses run between WHERE and the mutation
	With []string
	// Mutate holds complete SET / DELETE clauses
	Mutate []string

	Return   []string
	Distinct bool
	OrderBy  []string
	Skip     string
	Limit    string

	Params map[string]any
}

// Query renders the statement. Clauses are joined by single spaces and empty
// clauses are left out.
func (c *ClauseSet) Query() string {
	parts := make([]string, 0, 8)
	parts = append(parts, "MATCH "+strings.Join(c.Match, ", "))
	if c.Where != "" {
		parts = append(parts, "WHERE "+c.Where)
	}
	parts = append(parts, c.With...)
	parts = append(parts, c.Mutate...)

	ret := "RETURN "
	if c.Distinct {
		ret += "DISTINCT "
	}
	parts = append(parts, ret+strings.Join(c.Return, ", "))

	if len(c.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(c.OrderBy, ", "))
	}
	if c.Skip != "" {
		parts = append(parts, "SKIP "+c.Skip)
	}
	if c.Limit != "" {
		parts = append(parts, "LIMIT "+c.Limit)
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy, parameter values included
func (c *ClauseSet) Clone() *ClauseSet {
	out := *c
	out.Match = append([]string(nil), c.Match...)
	out.With = append([]string(nil), c.With...)
	out.Mutate = append([]string(nil), c.Mutate...)
	out.Return = append([]string(nil), c.Return...)
	out.OrderBy = append([]string(nil), c.OrderBy...)
	out.Params = make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		out.Params[k] = filter.CopyValue(v)
	}
	return &out
}
