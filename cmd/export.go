package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/export"
	"github.com/sells-group/leadgate/internal/filter"
)

var (
	exportUser  string
	exportOut   string
	exportQuery string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the user's masked lead grid to an XLSX workbook",
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

		return runExport(ctx, cmd.OutOrStdout(), b, exportUser, exportQuery, exportOut)
	},
}

func runExport(ctx context.Context, out io.Writer, b backend.Backend, userID, query, path string) error {
	s, err := openSession(ctx, b, userID)
	if err != nil {
		return err
	}
	s.SetQuery(query, filter.DefaultState())
	cards := s.View().Grid.Cards

	if err := export.WriteFile(ctx, path, cards); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Wrote %d leads to %s\n", len(cards), path)
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "user id")
	exportCmd.Flags().StringVar(&exportOut, "out", "leads.xlsx", "output file")
	exportCmd.Flags().StringVar(&exportQuery, "query", "", "search text")
	_ = exportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(exportCmd)
}
