// Package reporting derives dashboard figures from sale records. Every report
// is built from the same grouping primitives in this file.
package reporting

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
)

// Bucket accumulates the sales or sale lines that share a key.
type Bucket struct {
	Key      string
	Label    string
	Revenue  decimal.Decimal
	Cost     decimal.Decimal
	Count    int
	Quantity int
}

func (b Bucket) Profit() decimal.Decimal {
	return b.Revenue.Sub(b.Cost)
}

// SaleKey maps a sale to its group. An empty key leaves the sale out.
type SaleKey func(domain.SaleRecord) (key string, label string)

// ItemKey maps a sale line to its group. An empty key leaves the line out.
type ItemKey func(domain.SaleRecordItem) (key string, label string)

type Measure func(Bucket) decimal.Decimal

var (
	ByRevenue  Measure = func(b Bucket) decimal.Decimal { return b.Revenue }
	ByQuantity Measure = func(b Bucket) decimal.Decimal { return decimal.NewFromInt(int64(b.Quantity)) }
	ByCount    Measure = func(b Bucket) decimal.Decimal { return decimal.NewFromInt(int64(b.Count)) }
	ByProfit   Measure = func(b Bucket) decimal.Decimal { return b.Profit() }
)

// GroupSales counts each sale once, with its total as revenue. Results are
// ordered by key.
func GroupSales(records []domain.SaleRecord, key SaleKey) []Bucket {
	groups := newGroups()
	for _, r := range records {
		k, label := key(r)
		if k == "" {
			continue
		}
		b := groups.get(k, label)
		b.Revenue = b.Revenue.Add(r.Total)
		b.Count++
		for _, item := range r.Items {
			b.Quantity += item.Quantity
			b.Cost = b.Cost.Add(itemCost(item))
		}
	}
	return groups.sorted()
}

// GroupItems aggregates sale lines, valued at their captured price.
func GroupItems(records []domain.SaleRecord, key ItemKey) []Bucket {
	groups := newGroups()
	for _, r := range records {
		for _, item := range r.Items {
			k, label := key(item)
			if k == "" {
				continue
			}
			b := groups.get(k, label)
			b.Revenue = b.Revenue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			b.Cost = b.Cost.Add(itemCost(item))
			b.Quantity += item.Quantity
			b.Count++
		}
	}
	return groups.sorted()
}

// Totals folds every record into a single bucket.
func Totals(records []domain.SaleRecord) Bucket {
	buckets := GroupSales(records, func(domain.SaleRecord) (string, string) { return "all", "all" })
	if len(buckets) == 0 {
		return Bucket{Key: "all", Label: "all"}
	}
	return buckets[0]
}

// TopN returns the n largest buckets by measure, ties broken by label.
func TopN(buckets []Bucket, n int, measure Measure) []Bucket {
	out := slices.Clone(buckets)
	slices.SortStableFunc(out, func(a, b Bucket) int {
		if c := measure(b).Cmp(measure(a)); c != 0 {
			return c
		}
		return strings.Compare(a.Label, b.Label)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Slot is one position of a fixed axis, such as a day of a chart.
type Slot struct {
	Key   string
	Label string
}

// Align lays buckets on the given axis, zero-filling missing slots and
// dropping buckets outside it.
func Align(buckets []Bucket, slots []Slot) []Bucket {
	byKey := make(map[string]Bucket, len(buckets))
	for _, b := range buckets {
		byKey[b.Key] = b
	}
	out := make([]Bucket, 0, len(slots))
	for _, slot := range slots {
		b, ok := byKey[slot.Key]
		if !ok {
			b = Bucket{Key: slot.Key}
		}
		b.Label = slot.Label
		out = append(out, b)
	}
	return out
}

type Point struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

func Points(buckets []Bucket, measure Measure) []Point {
	out := make([]Point, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, Point{Name: b.Label, Value: measure(b)})
	}
	return out
}

func ByDay(loc *time.Location) SaleKey {
	return func(r domain.SaleRecord) (string, string) {
		t := r.CreatedAt.In(loc)
		return t.Format(time.DateOnly), t.Format("02/01")
	}
}

func ByMonth(loc *time.Location) SaleKey {
	return func(r domain.SaleRecord) (string, string) {
		t := r.CreatedAt.In(loc)
		return t.Format("2006-01"), monthLabels[t.Month()-1]
	}
}

func ByHour(loc *time.Location) SaleKey {
	return func(r domain.SaleRecord) (string, string) {
		h := r.CreatedAt.In(loc).Hour()
		return fmt.Sprintf("%02d", h), fmt.Sprintf("%dh", h)
	}
}

func ByWeekday(loc *time.Location) SaleKey {
	return func(r domain.SaleRecord) (string, string) {
		wd := r.CreatedAt.In(loc).Weekday()
		return fmt.Sprintf("%d", wd), weekdayLabels[wd]
	}
}

func BySeller(r domain.SaleRecord) (string, string) {
	if r.SellerName == "" {
		return domain.DefaultOperatorName, domain.DefaultOperatorName
	}
	return r.SellerID, r.SellerName
}

func ByPayment(r domain.SaleRecord) (string, string) {
	return r.PaymentMethod, r.PaymentMethod
}

func ByCustomer(r domain.SaleRecord) (string, string) {
	return r.CustomerID, r.CustomerName
}

func ByCategory(item domain.SaleRecordItem) (string, string) {
	if item.Category == "" {
		return "Outros", "Outros"
	}
	return item.Category, item.Category
}

func ByProduct(item domain.SaleRecordItem) (string, string) {
	if item.ProductName == "" {
		return item.ProductID, "Produto removido"
	}
	return item.ProductID, item.ProductName
}

// Filter keeps the records accepted by keep.
func Filter(records []domain.SaleRecord, keep func(domain.SaleRecord) bool) []domain.SaleRecord {
	out := make([]domain.SaleRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func Between(from, to time.Time) func(domain.SaleRecord) bool {
	return func(r domain.SaleRecord) bool {
		return !r.CreatedAt.Before(from) && r.CreatedAt.Before(to)
	}
}

func Paid(r domain.SaleRecord) bool {
	return r.Status == domain.SaleStatusPaid
}

func itemCost(item domain.SaleRecordItem) decimal.Decimal {
	return item.CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

var (
	weekdayLabels = [7]string{"DOM", "SEG", "TER", "QUA", "QUI", "SEX", "SÁB"}
	monthLabels   = [12]string{"JAN", "FEV", "MAR", "ABR", "MAI", "JUN", "JUL", "AGO", "SET", "OUT", "NOV", "DEZ"}
)

type groups struct {
	byKey map[string]*Bucket
}

func newGroups() *groups {
	return &groups{byKey: make(map[string]*Bucket)}
}

func (g *groups) get(key, label string) *Bucket {
	b, ok := g.byKey[key]
	if !ok {
		b = &Bucket{Key: key, Label: label}
		g.byKey[key] = b
	}
	return b
}

func (g *groups) sorted() []Bucket {
	out := make([]Bucket, 0, len(g.byKey))
	for _, b := range g.byKey {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b Bucket) int { return strings.Compare(a.Key, b.Key) })
	return out
}
