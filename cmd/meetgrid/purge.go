package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPurgeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete meetings past their retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, root.cfg, root.logger)
			if err != nil {
				return err
			}
			defer st.close()

			removed, err := st.meetings.DeleteExpiredMeetings(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("purge expired meetings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired meeting(s)\n", removed)
			return nil
		},
	}
}
