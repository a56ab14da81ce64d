package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
)

// Option keys
const (
	KeyOrder = "order"
	KeySkip  = "skip"
	KeyLimit = "limit"
)

// SortField orders results by one property
type SortField struct {
	Property   string
	Descending bool
}

// Options are the ordering and pagination of a find
type Options struct {
	Sort  []SortField
	Skip  *int
	Limit *int
}

// ParseOptions parses an options mapping:
//
//	{"order": [["age", "DESC"], {"name": "ASC"}, "email"], "skip": 10, "limit": 5}
func ParseOptions(spec map[string]any) (Options, error) {
	var opts Options
	for _, key := range sortedKeys(spec) {
		value := spec[key]
		switch key {
		case KeyOrder:
			fields, err := parseOrder(value)
			if err != nil {
				return Options{}, err
			}
			opts.Sort = fields
		case KeySkip, KeyLimit:
			n, ok := filter.ToInt(value)
			if !ok || n < 0 {
				return Options{}, errors.MalformedFilterf(key, "%s expects a non-negative integer, got %v", key, value)
			}
			if key == KeySkip {
				opts.Skip = &n
			} else {
				opts.Limit = &n
			}
		default:
			return Options{}, errors.MalformedFilterf(key, "unknown option %q", key)
		}
	}
	return opts, nil
}

func parseOrder(value any) ([]SortField, error) {
	entries, ok := filter.AsList(value)
	if !ok {
		if s, isString := value.(string); isString {
			entries = []any{s}
		} else {
			return nil, errors.MalformedFilterf(KeyOrder, "order expects a list, got %T", value)
		}
	}

	fields := make([]SortField, 0, len(entries))
	for i, entry := range entries {
		path := fmt.Sprintf("%s[%d]", KeyOrder, i)
		var prop, dir string
		if l, isList := filter.AsList(entry); isList {
			entry = l
		}
		switch e := entry.(type) {
		case string:
			prop = e
		case []any:
			if len(e) == 0 || len(e) > 2 {
				return nil, errors.MalformedFilterf(path, "order entry expects [property] or [property, direction]")
			}
			p, ok := e[0].(string)
			if !ok {
				return nil, errors.MalformedFilterf(path, "order property must be a string, got %T", e[0])
			}
			prop = p
			if len(e) == 2 {
				d, ok := e[1].(string)
				if !ok {
					return nil, errors.MalformedFilterf(path, "order direction must be a string, got %T", e[1])
				}
				dir = d
			}
		case map[string]any:
			if len(e) != 1 {
				return nil, errors.MalformedFilterf(path, "order entry expects exactly one property")
			}
			for k, v := range e {
				d, ok := v.(string)
				if !ok {
					return nil, errors.MalformedFilterf(path, "order direction must be a string, got %T", v)
				}
				prop, dir = k, d
			}
		default:
			return nil, errors.MalformedFilterf(path, "invalid order entry %T", entry)
		}

		if !filter.IsValidIdentifier(prop) {
			return nil, errors.MalformedFilterf(path, "invalid property name %q", prop)
		}
		desc, err := parseDirection(dir, path)
		if err != nil {
			return nil, err
		}
		fields = append(fields, SortField{Property: prop, Descending: desc})
	}
	return fields, nil
}

func parseDirection(dir, path string) (bool, error) {
	switch strings.ToUpper(dir) {
	case "", "ASC", "ASCENDING":
		return false, nil
	case "DESC", "DESCENDING":
		return true, nil
	}
	return false, errors.MalformedFilterf(path, "invalid sort direction %q (expected ASC or DESC)", dir)
}

// render returns the ORDER BY items and the SKIP / LIMIT placeholders
func (o Options) render(variable string, params *filter.Params) (order []string, skip, limit string) {
	for _, f := range o.Sort {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("%s.%s %s", variable, f.Property, dir))
	}
	if o.Skip != nil {
		skip = params.Placeholder(*o.Skip)
	}
	if o.Limit != nil {
		limit = params.Placeholder(*o.Limit)
	}
	return order, skip, limit
}

// Special projection sources
const (
	SourceElementID = "$elementId"
	SourceID        = "$id"
)

// ProjectionField maps one output key to a source property or identifier
type ProjectionField struct {
	Alias  string
	Source string
}

// Projection is an ordered set of output fields, sorted by alias
type Projection struct {
	Fields []ProjectionField
}

// ParseProjection parses {"dev_name": "name", "id": "$elementId"}. An empty or
// nil mapping means no projection.
func ParseProjection(spec map[string]any) (*Projection, error) {
	if len(spec) == 0 {
		return nil, nil
	}
	p := &Projection{Fields: make([]ProjectionField, 0, len(spec))}
	for _, alias := range sortedKeys(spec) {
		source, ok := spec[alias].(string)
		if !ok {
			return nil, errors.MalformedFilterf(alias, "projection source must be a string, got %T", spec[alias])
		}
		switch source {
		case SourceElementID, SourceID:
		default:
			if !filter.IsValidIdentifier(source) {
				return nil, errors.MalformedFilterf(alias, "invalid projection source %q", source)
			}
		}
		p.Fields = append(p.Fields, ProjectionField{Alias: alias, Source: source})
	}
	return p, nil
}

// render returns one RETURN item per field. Properties the target does not
// declare project to null.
func (p *Projection) render(variable string, t Target) []string {
	items := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		var expr string
		switch {
		case f.Source == SourceElementID:
			expr = fmt.Sprintf("elementId(%s)", variable)
		case f.Source == SourceID:
			expr = fmt.Sprintf("id(%s)", variable)
		case !t.declares(f.Source):
			expr = "null"
		default:
			expr = variable + "." + f.Source
		}
		items = append(items, expr+" AS "+filter.QuoteAlias(f.Alias))
	}
	return items
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
