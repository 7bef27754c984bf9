package usage

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zamadev/sandbox/internal/model"
)

var (
	eventsHeader = []string{"Date", "Type", "Kind", "Count", "Cost"}
	dailyHeader  = []string{"Date", "Total Requests", "2xx Requests", "4xx Requests", "5xx Requests", "Total Cost"}
)

// EventsCSV renders events as CSV, one row per event. Rows are separated by
// "\n" with no trailing newline.
func EventsCSV(events []model.UsageEvent) (string, error) {
	rows := make([][]string, 0, len(events)+1)
	rows = append(rows, eventsHeader)
	for _, e := range events {
		rows = append(rows, []string{
			e.Date.UTC().Format(dateLayout),
			string(e.Type),
			string(e.Kind),
			strconv.Itoa(e.Count),
			money(e.Cost),
		})
	}
	return writeCSV(rows)
}

// DailyCSV renders daily usage as CSV, one row per day.
func DailyCSV(days []model.DailyUsage) (string, error) {
	rows := make([][]string, 0, len(days)+1)
	rows = append(rows, dailyHeader)
	for _, d := range days {
		rows = append(rows, []string{
			d.Date.UTC().Format(dateLayout),
			strconv.Itoa(d.TotalRequests),
			strconv.Itoa(d.Requests2xx),
			strconv.Itoa(d.Requests4xx),
			strconv.Itoa(d.Requests5xx),
			money(d.TotalCost),
		})
	}
	return writeCSV(rows)
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func writeCSV(rows [][]string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
