package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zamadev/sandbox/internal/storage"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect the local profile storage",
	}
	cmd.AddCommand(newProfileDumpCmd())
	return cmd
}

// ---------- profile dump ----------

func newProfileDumpCmd() *cobra.Command {
	var (
		jsonOutput bool
		values     bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "List every entry stored in the profile",
		Long: `List the raw entries of the profile table: the encrypted key collection
and the session records. Values are omitted unless --values is given; they
include the live session token.

Needs a SQL storage driver (sqlite, postgres or mysql).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				entries, err := listProfile(ctx, a.kv)
				if err != nil {
					return err
				}
				if jsonOutput {
					if !values {
						for i := range entries {
							entries[i].Value = ""
						}
					}
					return printJSON(entries)
				}
				writeProfileTable(os.Stdout, entries, values)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&values, "values", false, "Include the stored values")
	return cmd
}

func listProfile(ctx context.Context, kv storage.KV) ([]storage.Entry, error) {
	l, ok := kv.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("profile dump needs a SQL storage driver (sqlite, postgres or mysql)")
	}
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return entries, nil
}

func writeProfileTable(w io.Writer, entries []storage.Entry, values bool) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "The profile is empty.")
		return
	}
	fmt.Fprintf(w, "%-20s %-10s %s\n", "KEY", "SIZE", "UPDATED")
	fmt.Fprintf(w, "%-20s %-10s %s\n", "---", "----", "-------")
	for _, e := range entries {
		fmt.Fprintf(w, "%-20s %-10s %s\n", e.Key, humanize.Bytes(uint64(len(e.Value))), updatedLabel(e.UpdatedAt))
		if values {
			fmt.Fprintf(w, "  %s\n", e.Value)
		}
	}
}

func updatedLabel(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
