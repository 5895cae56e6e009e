// Package usage provides the pure reconciliation math that turns per-label
// request counts into quota reports. All functions are deterministic with
// no side effects.
package usage

import (
	"math"
	"sort"
	"time"

	"github.com/mapmeter/mapmeter/domain/product"
)

// Row is the reconciled usage line for one product (value type).
type Row struct {
	Name      string   `json:"name"`
	Used      int64    `json:"used"`
	Quota     int64    `json:"quota"`
	Remaining int64    `json:"remaining"`
	Pct       float64  `json:"pct"`
	Labels    []string `json:"labels,omitempty"`
}

// Report is the full reconciliation output: one row per catalog product in
// classification order, a totals row, and the labels the backend reported
// that matched no product.
type Report struct {
	Rows         []Row
	Total        Row
	Unattributed map[string]int64
}

// NewRow computes the derived quota fields for a single product.
// Remaining never goes negative; pct is 0 when no quota is configured,
// otherwise used*100/quota rounded to one decimal (half away from zero),
// and may exceed 100 when the quota is blown.
func NewRow(name string, used, quota int64) Row {
	r := Row{Name: name, Used: used, Quota: quota}
	if rem := quota - used; rem > 0 {
		r.Remaining = rem
	}
	if quota > 0 {
		r.Pct = Round1(float64(used) * 100 / float64(quota))
	}
	return r
}

// Round1 rounds to one decimal place, halves away from zero.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// GroupCounts folds backend per-label counts into per-product totals using
// the catalog's classification rule. Labels that classify to no product
// (ignored or unknown) are returned separately and never enter a product
// total.
func GroupCounts(catalog product.Catalog, byLabel map[string]int64) (byProduct map[string]int64, unattributed map[string]int64) {
	byProduct = make(map[string]int64, catalog.Len())
	unattributed = make(map[string]int64)
	for _, name := range catalog.Names() {
		byProduct[name] = 0
	}
	for label, count := range byLabel {
		name, ok := catalog.Classify(label)
		if !ok {
			unattributed[label] = count
			continue
		}
		byProduct[name] += count
	}
	return byProduct, unattributed
}

// Build reconciles per-label counts against the catalog's quotas.
func Build(catalog product.Catalog, byLabel map[string]int64) Report {
	byProduct, unattributed := GroupCounts(catalog, byLabel)

	rep := Report{Unattributed: unattributed}
	var totalUsed, totalQuota int64
	for _, p := range catalog.Products() {
		row := NewRow(p.Name, byProduct[p.Name], p.Quota)
		row.Labels = p.Labels
		rep.Rows = append(rep.Rows, row)
		totalUsed += row.Used
		totalQuota += row.Quota
	}
	rep.Total = NewRow("total", totalUsed, totalQuota)
	return rep
}

// BuildFromCounts reconciles already-grouped per-product counts, e.g. the
// local bump ledger, against quotas. Products absent from counts read as 0;
// counts for names outside the catalog are carried through as extra rows
// with zero quota, so a bump against a since-removed product stays visible.
func BuildFromCounts(catalog product.Catalog, counts map[string]int64) Report {
	rep := Report{}
	seen := make(map[string]bool, len(counts))
	var totalUsed, totalQuota int64
	for _, p := range catalog.Products() {
		row := NewRow(p.Name, counts[p.Name], p.Quota)
		rep.Rows = append(rep.Rows, row)
		seen[p.Name] = true
		totalUsed += row.Used
		totalQuota += row.Quota
	}
	var extras []string
	for name := range counts {
		if !seen[name] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		rep.Rows = append(rep.Rows, NewRow(name, counts[name], 0))
		totalUsed += counts[name]
	}
	rep.Total = NewRow("total", totalUsed, totalQuota)
	return rep
}

// MonthKey returns the YYYY-MM partition key for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
