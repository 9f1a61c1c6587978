package reporter

import (
	"sort"

	"github.com/grafana/cloudmon-metrics/pkg/model"
)

// componentCacheEntry is one resolved (name, attributes) -> id binding.
type componentCacheEntry struct {
	name       string
	attributes []model.ComponentAttribute
	id         uint32
}

// ComponentCache resolves a configured Component to the numeric id the
// dashboard assigned it. It is rebuilt wholesale on refresh and is
// owned exclusively by the Reporter's single control loop.
type ComponentCache struct {
	entries []componentCacheEntry
}

func sortedAttributes(attrs []model.ComponentAttribute) []model.ComponentAttribute {
	out := make([]model.ComponentAttribute, len(attrs))
	copy(out, attrs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// BuildComponentCache indexes components fetched from the dashboard,
// sorting each one's attributes into a canonical order.
func BuildComponentCache(components []model.StatusDashboardComponent) *ComponentCache {
	entries := make([]componentCacheEntry, len(components))
	for i, c := range components {
		entries[i] = componentCacheEntry{
			name:       c.Name,
			attributes: sortedAttributes(c.Attributes),
			id:         c.ID,
		}
	}
	return &ComponentCache{entries: entries}
}

// attrsSupersetOf reports whether every attribute in want is present in have.
func attrsSupersetOf(have, want []model.ComponentAttribute) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h.Name == w.Name && h.Value == w.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Find resolves target's component id by name, then by the first
// cached entry whose attributes are a superset of target's. This is a
// subset match, not an exact one: a dashboard component may carry
// attributes the configuration never mentions.
func (c *ComponentCache) Find(target model.Component) (uint32, bool) {
	for _, e := range c.entries {
		if e.name != target.Name {
			continue
		}
		if attrsSupersetOf(e.attributes, target.Attributes) {
			return e.id, true
		}
	}
	return 0, false
}
