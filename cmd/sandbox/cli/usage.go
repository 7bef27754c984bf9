package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/usage"
)

// usageFlags are the window and type selectors shared by the usage commands.
type usageFlags struct {
	preset string
	start  string
	end    string
	types  []string
	json   bool
}

func (f *usageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "Date window ending today: last7days, last30days or last90days")
	cmd.Flags().StringVar(&f.start, "start", "", "Window start date (YYYY-MM-DD, requires --end)")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringSliceVar(&f.types, "types", nil, "Request types to include: 2xx, 4xx, 5xx (default all)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
}

func (f *usageFlags) parse() ([]model.RequestType, *usage.DateRange, error) {
	types, err := model.ParseRequestTypes(f.types)
	if err != nil {
		return nil, nil, err
	}
	window, err := usage.ParseWindow(f.preset, f.start, f.end, time.Now())
	if err != nil {
		return nil, nil, err
	}
	return types, window, nil
}

// windowDays loads the signed-in user's aggregated days and applies the date
// window.
func (f *usageFlags) windowDays(ctx context.Context, a *app) ([]model.DailyUsage, []model.RequestType, error) {
	types, window, err := f.parse()
	if err != nil {
		return nil, nil, err
	}
	u, err := signedInUser(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	days, err := a.usage.DailyUsage(ctx, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load usage: %w", err)
	}
	if window != nil {
		days = usage.FilterByDateRange(days, window.Start, window.End)
	}
	return days, types, nil
}

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Explore API usage and costs",
		Long:  "Show the signed-in user's request counts and costs, aggregated across all keys.",
	}

	cmd.AddCommand(newUsageDailyCmd())
	cmd.AddCommand(newUsageEventsCmd())
	cmd.AddCommand(newUsageSummaryCmd())
	cmd.AddCommand(newUsageKeyCmd())
	cmd.AddCommand(newUsageExportCmd())

	return cmd
}

// ---------- usage daily ----------

func newUsageDailyCmd() *cobra.Command {
	var f usageFlags

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Per-day request counts and cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				days, types, err := f.windowDays(ctx, a)
				if err != nil {
					return err
				}
				rows := usage.FormatForChart(days, types)
				if f.json {
					return printJSON(rows)
				}
				if len(rows) == 0 {
					fmt.Println("No usage recorded in this window.")
					return nil
				}
				fmt.Printf("%-12s %10s %10s %10s %10s %10s\n", "DATE", "TOTAL", "2XX", "4XX", "5XX", "COST")
				for _, r := range rows {
					fmt.Printf("%-12s %10s %10s %10s %10s %10s\n",
						r.Date,
						humanize.Comma(int64(r.TotalRequests)),
						humanize.Comma(int64(r.Requests2xx)),
						humanize.Comma(int64(r.Requests4xx)),
						humanize.Comma(int64(r.Requests5xx)),
						dollars(r.TotalCost),
					)
				}
				return nil
			})
		},
	}

	f.register(cmd)
	return cmd
}

// ---------- usage events ----------

func newUsageEventsCmd() *cobra.Command {
	var f usageFlags

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Individual usage events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				types, window, err := f.parse()
				if err != nil {
					return err
				}
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				events, err := a.usage.Events(ctx, u.ID)
				if err != nil {
					return fmt.Errorf("load usage: %w", err)
				}
				if window != nil {
					events = usage.FilterEventsByDateRange(events, window.Start, window.End)
				}
				events = usage.FilterEventsByType(events, types)
				if f.json {
					return printJSON(events)
				}
				if len(events) == 0 {
					fmt.Println("No usage events in this window.")
					return nil
				}
				fmt.Printf("%-12s %-6s %-8s %10s %10s\n", "DATE", "TYPE", "KIND", "COUNT", "COST")
				for _, e := range events {
					fmt.Printf("%-12s %-6s %-8s %10s %10s\n",
						e.Date.UTC().Format("2006-01-02"), e.Type, e.Kind, humanize.Comma(int64(e.Count)), dollars(e.Cost))
				}
				return nil
			})
		},
	}

	f.register(cmd)
	return cmd
}

// ---------- usage summary ----------

func newUsageSummaryCmd() *cobra.Command {
	var f usageFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Totals, daily averages and success rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				days, types, err := f.windowDays(ctx, a)
				if err != nil {
					return err
				}
				sum := usage.Summarize(days, types)
				if f.json {
					return printJSON(sum)
				}
				fmt.Printf("  Days:            %d\n", len(days))
				fmt.Printf("  Total requests:  %s\n", humanize.Comma(int64(sum.TotalRequests)))
				fmt.Printf("  Total cost:      %s\n", dollars(sum.TotalCost))
				fmt.Printf("  Requests/day:    %s\n", humanize.CommafWithDigits(sum.AvgRequestsPerDay, 1))
				fmt.Printf("  Cost/day:        %s\n", dollars(sum.AvgCostPerDay))
				fmt.Printf("  Success rate:    %.1f%%\n", sum.SuccessRate)
				fmt.Printf("  Error rate:      %.1f%%\n", sum.ErrorRate)
				return nil
			})
		},
	}

	f.register(cmd)
	return cmd
}

// ---------- usage key ----------

func newUsageKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <key-id>",
		Short: "Raw usage history of one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				ku, err := a.usage.UsageByKey(ctx, args[0], u.ID)
				if err != nil {
					return fmt.Errorf("load usage: %w", err)
				}
				if ku == nil {
					return fmt.Errorf("no usage recorded for key %q", args[0])
				}
				return printJSON(ku)
			})
		},
	}
}

// ---------- usage export ----------

func newUsageExportCmd() *cobra.Command {
	var (
		f          usageFlags
		format     string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export usage as CSV",
		Example: `  sandbox usage export --preset last30days -o usage.csv
  sandbox usage export --format events --types 4xx,5xx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "daily" && format != "events" {
				return fmt.Errorf("--format must be daily or events")
			}
			return withApp(func(ctx context.Context, a *app) error {
				var (
					out string
					err error
				)
				if format == "events" {
					types, window, perr := f.parse()
					if perr != nil {
						return perr
					}
					u, uerr := signedInUser(ctx, a)
					if uerr != nil {
						return uerr
					}
					events, lerr := a.usage.Events(ctx, u.ID)
					if lerr != nil {
						return fmt.Errorf("load usage: %w", lerr)
					}
					if window != nil {
						events = usage.FilterEventsByDateRange(events, window.Start, window.End)
					}
					out, err = usage.EventsCSV(usage.FilterEventsByType(events, types))
				} else {
					days, types, werr := f.windowDays(ctx, a)
					if werr != nil {
						return werr
					}
					out, err = usage.DailyCSV(usage.FilterDailyByTypes(days, types))
				}
				if err != nil {
					return fmt.Errorf("export usage: %w", err)
				}

				if outputFile == "" {
					fmt.Println(out)
					return nil
				}
				if err := os.WriteFile(outputFile, []byte(out), 0644); err != nil {
					return fmt.Errorf("write %s: %w", outputFile, err)
				}
				fmt.Printf("Wrote %s (%s)\n", outputFile, humanize.Bytes(uint64(len(out))))
				return nil
			})
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&format, "format", "daily", "CSV layout: daily or events")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write CSV to file instead of stdout")

	return cmd
}

func dollars(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}
