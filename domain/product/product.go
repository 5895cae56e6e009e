// Package product defines the metered products and the host classification
// table. All functions are pure - no side effects.
package product

import "strings"

// Product is a metered API capability tracked against a monthly quota.
// Labels are hostname substrings that attribute a backend-reported host
// to this product. A quota of 0 means tracked but no allowance.
type Product struct {
	Name   string
	Labels []string
	Quota  int64
}

// Catalog is the immutable classification table: an ordered product list
// plus hostnames that must never be attributed to any product.
// Classification order is the product definition order, so a host that
// could match two products is counted once, for the first match.
// A Catalog is safe for unsynchronized concurrent reads.
type Catalog struct {
	products []Product
	ignored  []string
	byName   map[string]int
}

// New builds a catalog from an ordered product list and an ignore list.
// Later products with a duplicate name are dropped.
func New(products []Product, ignored []string) Catalog {
	c := Catalog{
		ignored: ignored,
		byName:  make(map[string]int, len(products)),
	}
	for _, p := range products {
		if _, dup := c.byName[p.Name]; dup {
			continue
		}
		c.byName[p.Name] = len(c.products)
		c.products = append(c.products, p)
	}
	return c
}

// Products returns the products in classification order.
func (c Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Names returns the product names in classification order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.products))
	for i, p := range c.products {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the product with the given name.
func (c Catalog) Lookup(name string) (Product, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Len returns the number of products in the catalog.
func (c Catalog) Len() int {
	return len(c.products)
}

// Classify maps a backend-reported host to a product name.
// Ignored hosts win over any product label. Otherwise the first product
// (in definition order) with a label contained in the host wins.
// Matching is case-insensitive substring containment, which tolerates
// regional subdomains and version suffixes in backend labels.
// Returns ("", false) for ignored and unclassified hosts alike.
func (c Catalog) Classify(host string) (string, bool) {
	h := strings.ToLower(host)
	for _, ig := range c.ignored {
		if strings.Contains(h, strings.ToLower(ig)) {
			return "", false
		}
	}
	for _, p := range c.products {
		for _, label := range p.Labels {
			if strings.Contains(h, strings.ToLower(label)) {
				return p.Name, true
			}
		}
	}
	return "", false
}

// Quotas returns the configured quota per product name.
func (c Catalog) Quotas() map[string]int64 {
	q := make(map[string]int64, len(c.products))
	for _, p := range c.products {
		q[p.Name] = p.Quota
	}
	return q
}

// Default returns the stock Google Maps Platform catalog. The grouping
// follows GCP billing: maps.googleapis.com is deliberately absent because
// it also fronts Geocoding and Distance Matrix traffic.
func Default() Catalog {
	return New([]Product{
		{
			Name: "Places API",
			Labels: []string{
				"places-backend.googleapis.com",
				"place-details.googleapis.com",
				"place-photos.googleapis.com",
			},
		},
		{
			Name: "Directions API",
			Labels: []string{
				"directions-backend.googleapis.com",
			},
		},
		{
			Name: "Distance Matrix API",
			Labels: []string{
				"distancematrix-backend.googleapis.com",
			},
		},
		{
			Name: "Geocoding API",
			Labels: []string{
				"geocoding-backend.googleapis.com",
			},
		},
		{
			Name: "Roads API",
			Labels: []string{
				"roads.googleapis.com",
			},
		},
		{
			Name: "Maps JavaScript API",
			Labels: []string{
				"maps-backend.googleapis.com",
			},
		},
	}, DefaultIgnoredHosts())
}

// DefaultIgnoredHosts returns the Google infrastructure domains that show
// up in monitoring data but are not billable Maps products.
func DefaultIgnoredHosts() []string {
	return []string{
		"monitoring.googleapis.com",
		"analytics.googleapis.com",
		"fonts.googleapis.com",
		"fonts.gstatic.com",
		"maps.gstatic.com",
		"clients1.google.com",
	}
}
