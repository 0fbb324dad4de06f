package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/state"
)

func newDetectCmd(c *cli) *cobra.Command {
	var (
		asJSON   bool
		surveyID string
		since    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run one detection pass over the stored responses",
		Long: `Run every risk rule once over the stored responses and merge the
candidates into the alert store. Rule failures are reported but do not
discard the results of the other rules.

Examples:
  fieldwatch detect
  fieldwatch detect --survey hh-2026 --since 24h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := state.ResponseQuery{SurveyID: surveyID}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}

			a, err := openApp(cmd.Context(), c.cfg, monitor.WithQuery(q))
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.engine.Refresh(cmd.Context())
			if err != nil && !errors.Is(err, alerts.ErrDetectionPartialFailure) {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if werr := writeJSON(out, summary); werr != nil {
					return werr
				}
			} else {
				printSummary(out, summary)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().StringVar(&surveyID, "survey", "", "only analyse responses of this survey")
	cmd.Flags().DurationVar(&since, "since", 0, "only analyse responses submitted within this window")
	return cmd
}

func printSummary(w io.Writer, s monitor.Summary) {
	fmt.Fprintf(w, "Analyzed %d responses in %s\n", s.Analyzed, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Candidates: %d  new: %d  extended: %d  known: %d  skipped: %d\n",
		s.Candidates, len(s.Created), len(s.Extended), s.Known, s.Skipped)
	for _, id := range s.Created {
		fmt.Fprintf(w, "  created  %s\n", id)
	}
	for _, id := range s.Extended {
		fmt.Fprintf(w, "  extended %s\n", id)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  failed   %s\n", f)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
