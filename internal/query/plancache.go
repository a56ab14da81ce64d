package query

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/rohankatakam/graphogm/internal/errors"
)

// DefaultPlanCacheSize is the number of statements kept when no size is configured
const DefaultPlanCacheSize = 512

// CacheRecorder observes plan cache lookups
type CacheRecorder interface {
	RecordPlanCache(hit bool)
}

// PlanCache memoizes assembled statements by a hash of the operation, target
// and request mappings. Failed assemblies are never cached.
type PlanCache struct {
	entries  *lru.Cache[xxh3.Uint128, *ClauseSet]
	recorder CacheRecorder
}

// NewPlanCache creates a cache holding up to size statements. recorder may be nil.
func NewPlanCache(size int, recorder CacheRecorder) (*PlanCache, error) {
	if size <= 0 {
		size = DefaultPlanCacheSize
	}
	entries, err := lru.New[xxh3.Uint128, *ClauseSet](size)
	if err != nil {
		return nil, errors.ConfigErrorf("failed to create plan cache: %v", err)
	}
	return &PlanCache{entries: entries, recorder: recorder}, nil
}

func (c *PlanCache) get(key xxh3.Uint128) (*ClauseSet, bool) {
	cs, ok := c.entries.Get(key)
	if c.recorder != nil {
		c.recorder.RecordPlanCache(ok)
	}
	if !ok {
		return nil, false
	}
	return cs.Clone(), true
}

func (c *PlanCache) add(key xxh3.Uint128, cs *ClauseSet) {
	c.entries.Add(key, cs.Clone())
}

// Len returns the number of cached statements
func (c *PlanCache) Len() int {
	return c.entries.Len()
}

// Purge empties the cache
func (c *PlanCache) Purge() {
	c.entries.Purge()
}

// planKey hashes a canonical encoding of the request: map keys are sorted and
// every scalar is tagged with its dynamic type, so 1 and "1" differ.
func planKey(op string, req Request) xxh3.Uint128 {
	h := xxh3.New()
	writeString(h, op)
	writeString(h, req.Target.Kind.String())
	writeValue(h, req.Target.Labels)
	writeString(h, req.Target.Type)
	writeValue(h, req.Target.Properties)
	writeValue(h, map[string]any(req.Filter))
	writeValue(h, req.Projection)
	writeValue(h, req.Options)
	writeValue(h, req.Values)
	return h.Sum128()
}

func writeString(w io.Writer, s string) {
	_, _ = io.WriteString(w, strconv.Itoa(len(s)))
	_, _ = io.WriteString(w, ":")
	_, _ = io.WriteString(w, s)
}

func writeValue(w io.Writer, v any) {
	switch x := v.(type) {
	case nil:
		_, _ = io.WriteString(w, "N")
	case map[string]any:
		_, _ = fmt.Fprintf(w, "M%d{", len(x))
		for _, k := range sortedKeys(x) {
			writeString(w, k)
			writeValue(w, x[k])
		}
		_, _ = io.WriteString(w, "}")
	case []any:
		_, _ = fmt.Fprintf(w, "L%d[", len(x))
		for _, e := range x {
			writeValue(w, e)
		}
		_, _ = io.WriteString(w, "]")
	case []string:
		_, _ = fmt.Fprintf(w, "S%d[", len(x))
		for _, e := range x {
			writeString(w, e)
		}
		_, _ = io.WriteString(w, "]")
	case string:
		_, _ = io.WriteString(w, "s")
		writeString(w, x)
	default:
		writeReflect(w, reflect.ValueOf(v))
	}
}

// writeReflect covers typed slices and maps such as []int or map[string]string
func writeReflect(w io.Writer, rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		_, _ = fmt.Fprintf(w, "L%d[", rv.Len())
		for i := 0; i < rv.Len(); i++ {
			writeValue(w, rv.Index(i).Interface())
		}
		_, _ = io.WriteString(w, "]")
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		values := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			ks := fmt.Sprint(k.Interface())
			keys = append(keys, ks)
			values[ks] = rv.MapIndex(k).Interface()
		}
		sort.Strings(keys)
		_, _ = fmt.Fprintf(w, "M%d{", len(keys))
		for _, k := range keys {
			writeString(w, k)
			writeValue(w, values[k])
		}
		_, _ = io.WriteString(w, "}")
	default:
		_, _ = fmt.Fprintf(w, "%T:%v;", rv.Interface(), rv.Interface())
	}
}
