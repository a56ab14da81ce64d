// Package graph is the query execution boundary: it runs compiled Cypher
// against Neo4j and returns driver-independent raw records.
package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Node is a raw node record
type Node struct {
	ID        int64          `json:"id"`
	ElementID string         `json:"elementId"`
	Labels    []string       `json:"labels"`
	Props     map[string]any `json:"properties"`
}

// Relationship is a raw relationship record
type Relationship struct {
	ID             int64          `json:"id"`
	ElementID      string         `json:"elementId"`
	StartElementID string         `json:"startElementId"`
	EndElementID   string         `json:"endElementId"`
	Type           string         `json:"type"`
	Props          map[string]any `json:"properties"`
}

// Path is an alternating sequence of nodes and relationships:
// Nodes[0], Relationships[0], Nodes[1], ... Nodes[len(Relationships)].
type Path struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Elements returns the path as Node / Relationship values in traversal order
func (p Path) Elements() []any {
	out := make([]any, 0, len(p.Nodes)+len(p.Relationships))
	for i, n := range p.Nodes {
		out = append(out, n)
		if i < len(p.Relationships) {
			out = append(out, p.Relationships[i])
		}
	}
	return out
}

// Result is the eager result of one query: the returned variable names and one
// value per key in every row. Graph values are Node, Relationship or Path.
type Result struct {
	Keys []string
	Rows [][]any
}

// Column returns the index of key, -1 when absent
func (r *Result) Column(key string) int {
	for i, k := range r.Keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Value returns the value of key in row i
func (r *Result) Value(i int, key string) (any, bool) {
	col := r.Column(key)
	if col < 0 || i < 0 || i >= len(r.Rows) || col >= len(r.Rows[i]) {
		return nil, false
	}
	return r.Rows[i][col], true
}

// FromEager converts a driver result, replacing driver graph types by their raw
// record counterparts.
func FromEager(res *neo4j.EagerResult) *Result {
	if res == nil {
		return &Result{}
	}
	out := &Result{
		Keys: append([]string(nil), res.Keys...),
		Rows: make([][]any, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		out.Rows = append(out.Rows, convertRecord(rec))
	}
	return out
}

func convertRecord(rec *neo4j.Record) []any {
	row := make([]any, len(rec.Values))
	for i, v := range rec.Values {
		row[i] = Convert(v)
	}
	return row
}

// Convert maps driver graph values to Node, Relationship and Path, recursing into
// lists and maps. Other values are returned unchanged.
func Convert(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return convertNode(val)
	case dbtype.Relationship:
		return convertRelationship(val)
	case dbtype.Path:
		p := Path{
			Nodes:         make([]Node, len(val.Nodes)),
			Relationships: make([]Relationship, len(val.Relationships)),
		}
		for i, n := range val.Nodes {
			p.Nodes[i] = convertNode(n)
		}
		for i, r := range val.Relationships {
			p.Relationships[i] = convertRelationship(r)
		}
		return p
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Convert(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Convert(item)
		}
		return out
	}
	return v
}

func convertNode(n dbtype.Node) Node {
	return Node{
		//nolint:staticcheck // legacy id is still exposed for $id filters
		ID:        n.Id,
		ElementID: n.ElementId,
		Labels:    append([]string(nil), n.Labels...),
		Props:     copyProps(n.Props),
	}
}

func convertRelationship(r dbtype.Relationship) Relationship {
	return Relationship{
		//nolint:staticcheck // legacy id is still exposed for $id filters
		ID:             r.Id,
		ElementID:      r.ElementId,
		StartElementID: r.StartElementId,
		EndElementID:   r.EndElementId,
		Type:           r.Type,
		Props:          copyProps(r.Props),
	}
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = Convert(v)
	}
	return out
}
