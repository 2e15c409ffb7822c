package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgate/internal/fixture"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load leads, credit grants and feature flags from a YAML fixture",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		return runSeed(ctx, cmd.OutOrStdout(), s, seedFile)
	},
}

func runSeed(ctx context.Context, out io.Writer, s store, path string) error {
	f, err := fixture.Load(path)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	res, err := fixture.Apply(ctx, s, f)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Seeded %d leads, %d credit grants, %d flags\n", res.Leads, res.Credits, res.Flags)
	return nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "fixtures.yaml", "fixture file")
	rootCmd.AddCommand(seedCmd)
}
