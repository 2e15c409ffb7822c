package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/dashboard"
	"github.com/sells-group/leadgate/internal/filter"
	"github.com/sells-group/leadgate/internal/session"
	"github.com/sells-group/leadgate/internal/view"
)

var (
	leadsUser     string
	leadsQuery    string
	leadsMinScore int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Print the lead grid as a user sees it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := initBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close() //nolint:errcheck

		st := filter.DefaultState()
		st.MinScore = leadsMinScore
		return runLeads(ctx, cmd.OutOrStdout(), b, leadsUser, leadsQuery, st)
	},
}

// openSession loads a dashboard session for userID outside the HTTP server.
func openSession(ctx context.Context, b backend.Backend, userID string) (*dashboard.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, eris.New("--user is required")
	}
	s := dashboard.NewSession(userID, b, nil, dashboardConfig(cfg.Dashboard))
	snap := s.Load(ctx)
	if snap.Status == session.StatusError {
		for _, e := range snap.Errors {
			if e.Source == session.SourceLeads {
				return nil, eris.Wrap(e, "load dashboard")
			}
		}
		return nil, eris.New(session.MsgLoadError)
	}
	return s, nil
}

func runLeads(ctx context.Context, out io.Writer, b backend.Backend, userID, query string, st filter.State) error {
	s, err := openSession(ctx, b, userID)
	if err != nil {
		return err
	}
	s.SetQuery(query, st)
	page := s.View()

	formatLeadsTable(out, page.Grid)
	_, _ = fmt.Fprintf(out, "\n%d of %d leads, %d credits\n", page.Grid.FilteredCount, page.Grid.TotalCount, page.Credits)
	return nil
}

// formatLeadsTable writes the grid cards as a table. Locked cards show
// masked contact details.
func formatLeadsTable(out io.Writer, g view.Grid) {
	if g.Empty != "" {
		_, _ = fmt.Fprintln(out, g.Empty)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tEMAIL\tPHONE\tSCORE\tVALUE\tCITY\tSTATUS")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t-----\t-----\t-----\t----\t------")
	for _, c := range g.Cards {
		status := "unlocked"
		if c.Locked {
			status = "locked"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.ID, c.Company, c.Email, c.Phone, c.Score, c.PropertyValue, c.City, status)
	}
	_ = w.Flush()
}

func init() {
	leadsCmd.Flags().StringVar(&leadsUser, "user", "", "user id")
	leadsCmd.Flags().StringVar(&leadsQuery, "query", "", "search text")
	leadsCmd.Flags().IntVar(&leadsMinScore, "min-score", 0, "minimum intelligence score")
	_ = leadsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(leadsCmd)
}
