/*
Package catalog is the read-only registry of unlockable styles and
purchasable products.

PURPOSE:
  The credits core never mutates the catalog; items are created and
  updated by an external admin process. Products map a store product id
  to a structured {credits, unlock, price, included styles} record,
  replacing the fragile "parse the credit amount out of the product id
  string" pattern.

SORTING:
  ActiveStyles returns a stable order: SortOrder ascending, ties broken
  by id.

SEE ALSO:
  - data.go: seed data
  - credits/coordinator.go: the only consumer
*/
package catalog

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TYPES
// =============================================================================

// Style is one unlockable catalog item.
type Style struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Cost in credits. 0 means the style is included/free.
	Cost int64 `json:"cost"`

	// Included styles never spend credits; they unlock for free and are
	// also granted in bulk by the unlock product.
	Included bool `json:"included"`

	// Inactive styles cannot be newly unlocked. Existing entitlements
	// are unaffected.
	Active bool `json:"active"`

	SortOrder int    `json:"sort_order"`
	Category  string `json:"category"`
}

// Product is one purchasable store product.
type Product struct {
	ID      string `json:"id"`
	Credits int64  `json:"credits"`

	// Unlock marks the one-time unlock product: it flips the user's
	// unlocked flag and grants every style in Unlocks.
	Unlock bool `json:"unlock"`

	// Price in USD. Informational; billing happens in the app store.
	Price decimal.Decimal `json:"price"`

	Unlocks []string `json:"unlocks,omitempty"`
}

// Catalog provides read access to styles and products.
type Catalog interface {
	// Style looks up a style by id.
	Style(id string) (Style, bool)

	// ActiveStyles returns all active styles in stable display order.
	ActiveStyles() []Style

	// Product looks up a product by id.
	Product(id string) (Product, bool)

	// Products returns all products, cheapest credits pack first.
	Products() []Product
}

// =============================================================================
// STATIC CATALOG
// =============================================================================

// Static is an immutable in-memory Catalog.
type Static struct {
	styles   map[string]Style
	products map[string]Product
	active   []Style
	ordered  []Product
}

// NewStatic builds a Static catalog from the given items.
func NewStatic(styles []Style, products []Product) *Static {
	c := &Static{
		styles:   make(map[string]Style, len(styles)),
		products: make(map[string]Product, len(products)),
	}
	for _, s := range styles {
		c.styles[s.ID] = s
		if s.Active {
			c.active = append(c.active, s)
		}
	}
	sort.Slice(c.active, func(i, j int) bool {
		if c.active[i].SortOrder != c.active[j].SortOrder {
			return c.active[i].SortOrder < c.active[j].SortOrder
		}
		return c.active[i].ID < c.active[j].ID
	})

	for _, p := range products {
		c.products[p.ID] = p
	}
	c.ordered = append(c.ordered, products...)
	sort.Slice(c.ordered, func(i, j int) bool {
		if c.ordered[i].Credits != c.ordered[j].Credits {
			return c.ordered[i].Credits < c.ordered[j].Credits
		}
		return c.ordered[i].ID < c.ordered[j].ID
	})
	return c
}

func (c *Static) Style(id string) (Style, bool) {
	s, ok := c.styles[id]
	return s, ok
}

func (c *Static) ActiveStyles() []Style {
	out := make([]Style, len(c.active))
	copy(out, c.active)
	return out
}

func (c *Static) Product(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

func (c *Static) Products() []Product {
	out := make([]Product, len(c.ordered))
	copy(out, c.ordered)
	return out
}
