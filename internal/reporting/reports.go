package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type DayMetrics struct {
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
	Count   int             `json:"count"`
}

func dayMetrics(records []domain.SaleRecord) DayMetrics {
	t := Totals(records)
	return DayMetrics{Revenue: t.Revenue, Cost: t.Cost, Profit: t.Profit(), Count: t.Count}
}

type ProductRank struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type RecentSale struct {
	ID            string          `json:"id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	SellerName    string          `json:"seller_name"`
	CustomerName  string          `json:"customer_name,omitempty"`
	ItemCount     int             `json:"item_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

func RecentSales(records []domain.SaleRecord) []RecentSale {
	out := make([]RecentSale, 0, len(records))
	for _, r := range records {
		count := 0
		for _, item := range r.Items {
			count += item.Quantity
		}
		seller := r.SellerName
		if seller == "" {
			seller = domain.DefaultOperatorName
		}
		out = append(out, RecentSale{
			ID: r.SaleID, Total: r.Total, PaymentMethod: r.PaymentMethod, Status: r.Status,
			SellerName: seller, CustomerName: r.CustomerName, ItemCount: count, CreatedAt: r.CreatedAt,
		})
	}
	return out
}

type Dashboard struct {
	Period        string          `json:"period"`
	ChartData     []Point         `json:"chart_data"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TopProducts   []ProductRank   `json:"top_products"`
	RecentSales   []RecentSale    `json:"recent_sales"`
	Today         DayMetrics      `json:"today"`
	Yesterday     DayMetrics      `json:"yesterday"`
	LowStockCount int             `json:"low_stock_count"`
}

type DashboardInput struct {
	Window Window
	// Paid holds the PAID sales from the earlier of the window start and
	// yesterday's midnight.
	Paid     []domain.SaleRecord
	Recent   []domain.SaleRecord
	Products []domain.Product
	Now      time.Time
	Location *time.Location
}

func BuildDashboard(in DashboardInput) Dashboard {
	inWindow := Filter(in.Paid, Between(in.Window.From, in.Window.To))
	chart := Align(GroupSales(inWindow, in.Window.Key), in.Window.Slots)

	top := TopN(GroupItems(inWindow, ByProduct), 5, ByQuantity)
	ranks := make([]ProductRank, 0, len(top))
	for _, b := range top {
		ranks = append(ranks, ProductRank{ProductID: b.Key, Name: b.Label, Quantity: b.Quantity, Revenue: b.Revenue})
	}

	today := StartOfDay(in.Now, in.Location)
	yesterday := today.AddDate(0, 0, -1)

	lowStock := 0
	for _, p := range in.Products {
		if p.Stock <= domain.LowStockThreshold {
			lowStock++
		}
	}

	return Dashboard{
		Period:        in.Window.Period,
		ChartData:     Points(chart, ByRevenue),
		TotalRevenue:  Totals(inWindow).Revenue,
		TopProducts:   ranks,
		RecentSales:   RecentSales(in.Recent),
		Today:         dayMetrics(Filter(in.Paid, Between(today, today.AddDate(0, 0, 1)))),
		Yesterday:     dayMetrics(Filter(in.Paid, Between(yesterday, today))),
		LowStockCount: lowStock,
	}
}

type DailyPoint struct {
	Date   string          `json:"date"`
	Total  decimal.Decimal `json:"total"`
	Ticket decimal.Decimal `json:"ticket"`
	Count  int             `json:"count"`
}

type Advanced struct {
	Sellers        []Point      `json:"sellers"`
	Payments       []Point      `json:"payments"`
	Categories     []Point      `json:"categories"`
	SalesByHour    []Point      `json:"sales_by_hour"`
	SalesByWeekday []Point      `json:"sales_by_weekday"`
	TopCustomers   []Point      `json:"top_customers"`
	DailyHistory   []DailyPoint `json:"daily_history"`
}

// AdvancedDays is how far back the advanced analytics look.
const AdvancedDays = 30

// BuildAdvanced expects the PAID sales of the last AdvancedDays days.
func BuildAdvanced(paid []domain.SaleRecord, now time.Time, loc *time.Location) Advanced {
	hourSlots := make([]Slot, 0, 24)
	for h := 0; h < 24; h++ {
		hour := time.Date(2000, 1, 1, h, 0, 0, 0, loc)
		key, label := ByHour(loc)(domain.SaleRecord{CreatedAt: hour})
		hourSlots = append(hourSlots, Slot{Key: key, Label: label})
	}
	weekdaySlots := make([]Slot, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		weekdaySlots = append(weekdaySlots, Slot{Key: string(rune('0' + int(wd))), Label: weekdayLabels[wd]})
	}

	first := StartOfDay(now, loc).AddDate(0, 0, -(AdvancedDays - 1))
	days := Align(GroupSales(paid, ByDay(loc)), daySlots(first, AdvancedDays, shortDateLabel))
	history := make([]DailyPoint, 0, len(days))
	for _, d := range days {
		ticket := decimal.Zero
		if d.Count > 0 {
			ticket = d.Revenue.Div(decimal.NewFromInt(int64(d.Count))).Round(2)
		}
		history = append(history, DailyPoint{Date: d.Label, Total: d.Revenue, Ticket: ticket, Count: d.Count})
	}

	return Advanced{
		Sellers:        Points(TopN(GroupSales(paid, BySeller), 5, ByRevenue), ByRevenue),
		Payments:       Points(GroupSales(paid, ByPayment), ByRevenue),
		Categories:     Points(TopN(GroupItems(paid, ByCategory), 5, ByRevenue), ByRevenue),
		SalesByHour:    Points(Align(GroupSales(paid, ByHour(loc)), hourSlots), ByCount),
		SalesByWeekday: Points(Align(GroupSales(paid, ByWeekday(loc)), weekdaySlots), ByRevenue),
		TopCustomers:   Points(TopN(GroupSales(paid, ByCustomer), 5, ByRevenue), ByRevenue),
		DailyHistory:   history,
	}
}

type ProfitPoint struct {
	Date   string          `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Profit decimal.Decimal `json:"profit"`
}

type Financial struct {
	Period       string          `json:"period"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	Margin       decimal.Decimal `json:"margin"`
	ChartData    []ProfitPoint   `json:"chart_data"`
	CategoryData []Point         `json:"category_data"`
}

// BuildFinancial profit is revenue minus the current cost price of what was
// sold. Days without sales are left out of the chart.
func BuildFinancial(w Window, records []domain.SaleRecord) Financial {
	records = Filter(records, Between(w.From, w.To))
	totals := Totals(records)

	margin := decimal.Zero
	if totals.Revenue.IsPositive() {
		margin = totals.Profit().Div(totals.Revenue).Mul(hundred).Round(1)
	}

	days := GroupSales(records, w.Key)
	chart := make([]ProfitPoint, 0, len(days))
	for _, d := range days {
		chart = append(chart, ProfitPoint{Date: d.Label, Sales: d.Revenue, Profit: d.Profit()})
	}

	return Financial{
		Period:       w.Period,
		TotalRevenue: totals.Revenue,
		TotalCost:    totals.Cost,
		NetProfit:    totals.Profit(),
		Margin:       margin,
		ChartData:    chart,
		CategoryData: Points(TopN(GroupItems(records, ByCategory), 0, ByRevenue), ByRevenue),
	}
}

type SellerMetrics struct {
	RevenueToday decimal.Decimal `json:"revenue_today"`
	CountToday   int             `json:"count_today"`
	ChartData    []Point         `json:"chart_data"`
	RecentSales  []RecentSale    `json:"recent_sales"`
}

// BuildSellerMetrics expects one seller's sales since six days before today.
func BuildSellerMetrics(records []domain.SaleRecord, recent []domain.SaleRecord, now time.Time, loc *time.Location) SellerMetrics {
	today := StartOfDay(now, loc)
	first := today.AddDate(0, 0, -6)
	week := Align(GroupSales(Filter(records, Between(first, today.AddDate(0, 0, 1))), ByDay(loc)), daySlots(first, 7, weekdayLabel))
	todays := Totals(Filter(records, Between(today, today.AddDate(0, 0, 1))))

	return SellerMetrics{
		RevenueToday: todays.Revenue,
		CountToday:   todays.Count,
		ChartData:    Points(week, ByRevenue),
		RecentSales:  RecentSales(recent),
	}
}
