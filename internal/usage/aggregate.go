package usage

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zamadev/sandbox/internal/model"
)

const dateLayout = "2006-01-02"

// Preset names a rolling date window ending today.
type Preset string

const (
	Last7Days  Preset = "last7days"
	Last30Days Preset = "last30days"
	Last90Days Preset = "last90days"
)

// Presets lists the supported presets.
var Presets = []Preset{Last7Days, Last30Days, Last90Days}

// DateRange is an inclusive time window.
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// FindByKey returns the usage of keyID owned by userID, or nil.
func FindByKey(data []model.KeyUsage, keyID, userID string) *model.KeyUsage {
	for i := range data {
		if data[i].KeyID == keyID && data[i].UserID == userID {
			return &data[i]
		}
	}
	return nil
}

// FilterByUser returns every key usage of userID.
func FilterByUser(data []model.KeyUsage, userID string) []model.KeyUsage {
	out := make([]model.KeyUsage, 0)
	for _, u := range data {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out
}

// AggregateDaily merges the daily records of all given keys by UTC calendar
// date, summing counters and concatenating events. The result is sorted by
// date descending. Inputs are not modified.
func AggregateDaily(keys []model.KeyUsage) []model.DailyUsage {
	byDate := make(map[string]*model.DailyUsage)
	cost := make(map[string]decimal.Decimal)
	var order []string

	for _, k := range keys {
		for _, d := range k.DailyUsage {
			day := d.Date.UTC().Format(dateLayout)
			agg, ok := byDate[day]
			if !ok {
				cp := d
				cp.Events = append([]model.UsageEvent(nil), d.Events...)
				byDate[day] = &cp
				cost[day] = decimal.NewFromFloat(d.TotalCost)
				order = append(order, day)
				continue
			}
			agg.TotalRequests += d.TotalRequests
			agg.Requests2xx += d.Requests2xx
			agg.Requests4xx += d.Requests4xx
			agg.Requests5xx += d.Requests5xx
			agg.Events = append(agg.Events, d.Events...)
			cost[day] = cost[day].Add(decimal.NewFromFloat(d.TotalCost))
		}
	}

	out := make([]model.DailyUsage, 0, len(order))
	for _, day := range order {
		agg := byDate[day]
		agg.TotalCost = cost[day].InexactFloat64()
		out = append(out, *agg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// FlattenEvents returns every event of the given keys sorted by date
// descending.
func FlattenEvents(keys []model.KeyUsage) []model.UsageEvent {
	out := make([]model.UsageEvent, 0)
	for _, k := range keys {
		for _, d := range k.DailyUsage {
			out = append(out, d.Events...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// FilterByDateRange keeps days between the start of start's day and the end
// of end's day, both inclusive, in the locations of start and end.
func FilterByDateRange(days []model.DailyUsage, start, end time.Time) []model.DailyUsage {
	lo := startOfDay(start)
	hi := endOfDay(end)
	out := make([]model.DailyUsage, 0)
	for _, d := range days {
		if !d.Date.Before(lo) && !d.Date.After(hi) {
			out = append(out, d)
		}
	}
	return out
}

// FilterEventsByDateRange is FilterByDateRange for flattened events.
func FilterEventsByDateRange(events []model.UsageEvent, start, end time.Time) []model.UsageEvent {
	lo := startOfDay(start)
	hi := endOfDay(end)
	out := make([]model.UsageEvent, 0)
	for _, e := range events {
		if !e.Date.Before(lo) && !e.Date.After(hi) {
			out = append(out, e)
		}
	}
	return out
}

// FilterEventsByType keeps events of the selected types. An empty selection
// means no filter.
func FilterEventsByType(events []model.UsageEvent, types []model.RequestType) []model.UsageEvent {
	if len(types) == 0 {
		return events
	}
	sel := typeSet(types)
	out := make([]model.UsageEvent, 0, len(events))
	for _, e := range events {
		if sel[e.Type] {
			out = append(out, e)
		}
	}
	return out
}

// FilterDailyByTypes narrows each day to the selected request types: the
// counters of unselected types become zero, the total is recomputed from the
// kept counters and the cost from the kept events. An empty selection or one
// naming all three types returns days unchanged.
func FilterDailyByTypes(days []model.DailyUsage, types []model.RequestType) []model.DailyUsage {
	sel := typeSet(types)
	if len(sel) == 0 || len(sel) == len(model.AllRequestTypes) {
		return days
	}

	out := make([]model.DailyUsage, 0, len(days))
	for _, d := range days {
		events := FilterEventsByType(d.Events, types)
		nd := d
		nd.Requests2xx = pick(sel[model.Request2xx], d.Requests2xx)
		nd.Requests4xx = pick(sel[model.Request4xx], d.Requests4xx)
		nd.Requests5xx = pick(sel[model.Request5xx], d.Requests5xx)
		nd.TotalRequests = nd.Requests2xx + nd.Requests4xx + nd.Requests5xx
		total := decimal.Zero
		for _, e := range events {
			total = total.Add(decimal.NewFromFloat(e.Cost))
		}
		nd.TotalCost = total.InexactFloat64()
		nd.Events = events
		out = append(out, nd)
	}
	return out
}

// DateRangePreset returns the window of a preset ending on now's day: seven,
// thirty or ninety calendar days including today.
func DateRangePreset(p Preset, now time.Time) (DateRange, error) {
	var back int
	switch p {
	case Last7Days:
		back = 6
	case Last30Days:
		back = 29
	case Last90Days:
		back = 89
	default:
		return DateRange{}, &model.ValidationError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", p)}
	}
	return DateRange{
		Start: startOfDay(now.AddDate(0, 0, -back)),
		End:   endOfDay(now),
	}, nil
}

// FormatForChart converts days to chart rows sorted by date ascending, after
// applying the optional type filter. Costs are rounded to cents.
func FormatForChart(days []model.DailyUsage, types []model.RequestType) []model.ChartRow {
	filtered := days
	if len(types) > 0 {
		filtered = FilterDailyByTypes(days, types)
	}
	sorted := append([]model.DailyUsage(nil), filtered...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	rows := make([]model.ChartRow, 0, len(sorted))
	for _, d := range sorted {
		rows = append(rows, model.ChartRow{
			Date:          d.Date.UTC().Format(dateLayout),
			TotalRequests: d.TotalRequests,
			Requests2xx:   d.Requests2xx,
			Requests4xx:   d.Requests4xx,
			Requests5xx:   d.Requests5xx,
			TotalCost:     round(decimal.NewFromFloat(d.TotalCost), 2),
		})
	}
	return rows
}

// Summarize computes the headline numbers of days after applying the
// optional type filter. Rates are percentages rounded to two decimals.
func Summarize(days []model.DailyUsage, types []model.RequestType) model.UsageSummary {
	filtered := days
	if len(types) > 0 {
		filtered = FilterDailyByTypes(days, types)
	}
	if len(filtered) == 0 {
		return model.UsageSummary{}
	}

	var total, ok2xx, err4xx, err5xx int
	cost := decimal.Zero
	for _, d := range filtered {
		total += d.TotalRequests
		ok2xx += d.Requests2xx
		err4xx += d.Requests4xx
		err5xx += d.Requests5xx
		cost = cost.Add(decimal.NewFromFloat(d.TotalCost))
	}

	n := decimal.NewFromInt(int64(len(filtered)))
	s := model.UsageSummary{
		TotalRequests:     total,
		TotalCost:         round(cost, 2),
		AvgRequestsPerDay: round(decimal.NewFromInt(int64(total)).Div(n), 0),
		AvgCostPerDay:     round(cost.Div(n), 2),
	}
	if total > 0 {
		t := decimal.NewFromInt(int64(total))
		hundred := decimal.NewFromInt(100)
		s.SuccessRate = round(decimal.NewFromInt(int64(ok2xx)).Div(t).Mul(hundred), 2)
		s.ErrorRate = round(decimal.NewFromInt(int64(err4xx+err5xx)).Div(t).Mul(hundred), 2)
	}
	return s
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

func pick(keep bool, v int) int {
	if keep {
		return v
	}
	return 0
}

func typeSet(types []model.RequestType) map[model.RequestType]bool {
	set := make(map[model.RequestType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
