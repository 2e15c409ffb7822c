package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/notify"
)

var unlockUser string

var unlockCmd = &cobra.Command{
	Use:   "unlock [lead-id...]",
	Short: "Spend credits to unlock contact details for leads",
	Args:  cobra.MinimumNArgs(1),
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

		return runUnlock(ctx, cmd.OutOrStdout(), b, unlockUser, args)
	},
}

// runUnlock selects ids and unlocks them as one batch. Notifications raised
// along the way are echoed to out.
func runUnlock(ctx context.Context, out io.Writer, b backend.Backend, userID string, ids []string) error {
	s, err := openSession(ctx, b, userID)
	if err != nil {
		return err
	}

	unsubscribe := s.Feed().Subscribe(func(n notify.Notification) {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
	})
	defer unsubscribe()

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !s.Toggle(id) {
			_, _ = fmt.Fprintf(out, "skipping %s: already unlocked or not found\n", id)
		}
	}

	if _, err := s.Unlock(ctx); err != nil {
		return eris.Wrap(err, "unlock")
	}
	return nil
}

func init() {
	unlockCmd.Flags().StringVar(&unlockUser, "user", "", "user id")
	_ = unlockCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(unlockCmd)
}
