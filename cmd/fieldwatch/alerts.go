package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

func newAlertsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List, inspect and act on risk alerts",
		Long: `List, inspect and act on risk alerts without the dashboard.

Examples:
  fieldwatch alerts list --status active --severity high
  fieldwatch alerts show 6b1f0e2a-93c4-5d7e-8a10-4c2b9f7d3e61
  fieldwatch alerts investigate 6b1f0e2a-93c4-5d7e-8a10-4c2b9f7d3e61 --note "calling the team lead"
  fieldwatch alerts resolve 6b1f0e2a-93c4-5d7e-8a10-4c2b9f7d3e61 --resolution false_positive --notes "training session"`,
	}

	cmd.AddCommand(
		newAlertsListCmd(c),
		newAlertsShowCmd(c),
		newAlertsInvestigateCmd(c),
		newAlertsResolveCmd(c),
		newAlertsNoteCmd(c),
		newAlertsEscalateCmd(c),
		newAlertsContactCmd(c),
	)
	return cmd
}

func newAlertsListCmd(c *cli) *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter()
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.manager.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			return printAlertTable(cmd.OutOrStdout(), list, time.Now())
		},
	}

	filters.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the alerts as JSON")
	return cmd
}

func newAlertsShowCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <alert-id>",
		Short: "Show one alert with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			alert, err := a.manager.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), alert)
			}
			printAlert(cmd.OutOrStdout(), alert)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the alert as JSON")
	return cmd
}

func newAlertsInvestigateCmd(c *cli) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "investigate <alert-id>",
		Short: "Mark an active alert as under investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, "investigating", func(ctx context.Context, m *alerts.Manager) (alerts.RiskAlert, error) {
				return m.MarkInvestigating(ctx, args[0], strings.TrimSpace(note))
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "optional investigation note")
	return cmd
}

func newAlertsResolveCmd(c *cli) *cobra.Command {
	var resolution, notes string

	cmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an open alert",
		Long: `Resolve an open alert. Resolved alerts cannot be reopened.

Resolutions: false_positive, data_corrected, conductor_contacted,
system_updated, escalated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := alerts.Resolution(resolution)
			if !r.Valid() {
				return fmt.Errorf("unknown resolution %q", resolution)
			}
			if strings.TrimSpace(notes) == "" {
				return fmt.Errorf("--notes is required")
			}
			return c.mutate(cmd, "resolved", func(ctx context.Context, m *alerts.Manager) (alerts.RiskAlert, error) {
				return m.Resolve(ctx, args[0], r, strings.TrimSpace(notes))
			})
		},
	}

	cmd.Flags().StringVar(&resolution, "resolution", "", "how the alert was resolved")
	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func newAlertsNoteCmd(c *cli) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "note <alert-id> <text>...",
		Short: "Add an investigation note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return fmt.Errorf("note text is required")
			}
			return c.mutate(cmd, "noted", func(ctx context.Context, m *alerts.Manager) (alerts.RiskAlert, error) {
				return m.AddNote(ctx, args[0], strings.TrimSpace(author), text)
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", os.Getenv("USER"), "note author")
	return cmd
}

func newAlertsEscalateCmd(c *cli) *cobra.Command {
	var reason, notes string

	cmd := &cobra.Command{
		Use:   "escalate <alert-id>",
		Short: "Escalate an open alert to an administrator",
		Long: `Escalate an open alert to an administrator.

Reasons: high_severity, requires_admin_action, policy_violation,
technical_issue, other.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := alerts.EscalationReason(reason)
			if !r.Valid() {
				return fmt.Errorf("unknown escalation reason %q", reason)
			}
			return c.mutate(cmd, "escalated", func(ctx context.Context, m *alerts.Manager) (alerts.RiskAlert, error) {
				return m.Escalate(ctx, args[0], r, strings.TrimSpace(notes))
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "escalation reason")
	cmd.Flags().StringVar(&notes, "notes", "", "escalation notes")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newAlertsContactCmd(c *cli) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "contact <alert-id>",
		Short: "Record a message sent to the conductor behind an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("--message is required")
			}
			return c.mutate(cmd, "conductor contacted", func(ctx context.Context, m *alerts.Manager) (alerts.RiskAlert, error) {
				return m.ContactConductor(ctx, args[0], strings.TrimSpace(message))
			})
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "message sent to the conductor")
	return cmd
}

// mutate opens the store, applies fn and reports the updated alert.
func (c *cli) mutate(cmd *cobra.Command, verb string, fn func(context.Context, *alerts.Manager) (alerts.RiskAlert, error)) error {
	a, err := openApp(cmd.Context(), c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	alert, err := fn(cmd.Context(), a.manager)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", alert.ID, verb, alert.Status)
	return nil
}

func printAlertTable(w io.Writer, list []alerts.RiskAlert, now time.Time) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No alerts.")
		return err
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		StyleFunc(func(row, col int) lipgloss.Style { return cell }).
		Headers("ID", "SEVERITY", "STATUS", "TYPE", "SURVEY", "RESPONSES", "AGE")
	for _, a := range list {
		t.Row(
			a.ID,
			string(a.Severity),
			string(a.Status),
			string(a.Type),
			dash(a.SurveyID),
			strconv.Itoa(len(a.AffectedResponses)),
			now.Sub(a.DetectedAt).Round(time.Minute).String(),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func printAlert(w io.Writer, a alerts.RiskAlert) {
	const stamp = "2006-01-02 15:04"

	fmt.Fprintf(w, "ID:        %s\n", a.ID)
	fmt.Fprintf(w, "Type:      %s\n", a.Type.Label())
	fmt.Fprintf(w, "Severity:  %s\n", a.Severity)
	fmt.Fprintf(w, "Status:    %s\n", a.Status)
	fmt.Fprintf(w, "Survey:    %s\n", dash(a.SurveyID))
	fmt.Fprintf(w, "Detected:  %s\n", a.DetectedAt.Local().Format(stamp))
	if a.Location != nil {
		loc := fmt.Sprintf("%.5f, %.5f", a.Location.Latitude, a.Location.Longitude)
		if a.Location.Address != "" {
			loc += " (" + a.Location.Address + ")"
		}
		fmt.Fprintf(w, "Location:  %s\n", loc)
	}
	fmt.Fprintf(w, "Message:   %s\n", a.Message)
	fmt.Fprintf(w, "Responses: %s\n", strings.Join(a.AffectedResponses, ", "))
	if a.InvestigatedAt != nil {
		fmt.Fprintf(w, "Investigating since %s\n", a.InvestigatedAt.Local().Format(stamp))
	}
	if a.ResolvedAt != nil {
		fmt.Fprintf(w, "Resolved %s as %s: %s\n", a.ResolvedAt.Local().Format(stamp), a.Resolution, a.ResolutionNotes)
	}
	if len(a.Notes) > 0 {
		fmt.Fprintln(w, "Notes:")
		for _, n := range a.Notes {
			fmt.Fprintf(w, "  %s %s: %s\n", n.CreatedAt.Local().Format(stamp), dash(n.Author), n.Text)
		}
	}
	if len(a.Escalations) > 0 {
		fmt.Fprintln(w, "Escalations:")
		for _, e := range a.Escalations {
			fmt.Fprintf(w, "  %s %s: %s\n", e.EscalatedAt.Local().Format(stamp), e.Reason, e.Notes)
		}
	}
	if len(a.Contacts) > 0 {
		fmt.Fprintln(w, "Conductor contacts:")
		for _, ct := range a.Contacts {
			fmt.Fprintf(w, "  %s %s\n", ct.SentAt.Local().Format(stamp), ct.Message)
		}
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
