package collection

import "github.com/frostime/sy-query-view/pkg/record"

// Groups is an ordered partition of a collection. Keys keep the order in
// which they were first seen.
type Groups struct {
	keys   []string
	groups map[string]*Collection
}

// Keys returns the group keys in first-seen order.
func (g *Groups) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Get returns the sub-collection for key.
func (g *Groups) Get(key string) (*Collection, bool) {
	c, ok := g.groups[key]
	return c, ok
}

// Len returns the number of groups.
func (g *Groups) Len() int { return len(g.keys) }

// Each calls fn for every group in first-seen order.
func (g *Groups) Each(fn func(key string, c *Collection)) {
	for _, k := range g.keys {
		fn(k, g.groups[k])
	}
}

// Map returns the groups as a plain map.
func (g *Groups) Map() map[string]*Collection {
	out := make(map[string]*Collection, len(g.groups))
	for k, v := range g.groups {
		out[k] = v
	}
	return out
}

// GroupBy partitions records by the string-coerced value of field. If each
// is non-nil it is called once per group, in first-seen key order, after
// every group has been fully populated.
func (c *Collection) GroupBy(field string, each func(key string, g *Collection)) *Groups {
	return c.GroupByFunc(func(r record.Record) any {
		v, _ := r.Get(field)
		return v
	}, each)
}

// GroupByFunc partitions records by a computed key. See [Collection.GroupBy].
func (c *Collection) GroupByFunc(key func(r record.Record) any, each func(key string, g *Collection)) *Groups {
	g := &Groups{groups: make(map[string]*Collection)}
	for _, r := range c.rows {
		k := record.KeyOf(key(r))
		sub, ok := g.groups[k]
		if !ok {
			sub = c.derive(nil)
			g.groups[k] = sub
			g.keys = append(g.keys, k)
		}
		sub.rows = append(sub.rows, r)
	}
	if each != nil {
		g.Each(each)
	}
	return g
}
