package reservation

import "sync"

// Catalog is a small in-memory FamilyVariantInfo lookup, seeded at boot
// and refreshable from configuration. The reservation service falls back
// from (family,variant) to any variant of the family, then to a hard-cap
// default (spec §4.F step 3).
type Catalog struct {
	mu    sync.RWMutex
	infos map[string]map[string]FamilyVariantInfo // family -> variant -> info
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{infos: make(map[string]map[string]FamilyVariantInfo)}
}

// Put registers or replaces a FamilyVariantInfo entry.
func (c *Catalog) Put(info FamilyVariantInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.infos[info.Family] == nil {
		c.infos[info.Family] = make(map[string]FamilyVariantInfo)
	}
	c.infos[info.Family][info.Variant] = info
}

// Lookup resolves (family,variant), falling back to any variant of the
// family, then to the hard-cap default.
func (c *Catalog) Lookup(family, variant string) FamilyVariantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byVariant, famOK := c.infos[family]
	if !famOK {
		return fallbackInfo(family, variant)
	}
	if info, ok := byVariant[variant]; ok {
		return info
	}
	for _, info := range byVariant {
		return info // any variant of the family
	}
	return fallbackInfo(family, variant)
}
