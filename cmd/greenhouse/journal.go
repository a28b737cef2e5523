package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
	"github.com/vincentmworia/GreenhouseIOT/internal/journal"
)

// errJournalDisabled is returned when the journal command runs without a journal configured.
var errJournalDisabled = errors.New("journal is disabled in configuration")

// newJournalCmd lists recorded session events, most recent first.
func newJournalCmd(configPath *string) *cobra.Command {
	var (
		kind       string
		clientID   string
		since      time.Duration
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent MQTT session events from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errJournalDisabled
			}

			db, err := openJournal(cmd.Context(), cfg.Journal)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only command

			filter := journal.Filter{
				Kind:     mqtt.EventKind(kind),
				ClientID: clientID,
				Limit:    limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			page, err := journal.NewSQLiteRepository(db.DB).List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing session events: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			return printEntries(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only show events of this kind (e.g. disconnected)")
	cmd.Flags().StringVar(&clientID, "client", "", "only show events for this client id")
	cmd.Flags().DurationVar(&since, "since", 0, "only show events newer than this (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")

	return cmd
}

func printEntries(out io.Writer, page *journal.ListResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tCLIENT\tREASON\tTOPIC\tERROR")
	for _, e := range page.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime),
			e.Kind, e.ClientID, e.Reason, e.Topic, e.Error,
		)
	}
	fmt.Fprintf(w, "\n%d of %d events\n", len(page.Entries), page.Total)
	return w.Flush()
}
