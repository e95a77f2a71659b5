package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sessions this device can resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			if prune {
				n, err := e.cache.Prune(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to prune participations: %w", err)
				}
				fmt.Fprintf(out, "pruned %d expired participations\n", n)
			}

			recs, err := e.cache.History(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list participations: %w", err)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "no sessions joined from this device")
				return nil
			}
			for _, rec := range recs {
				fmt.Fprintf(out, "  %-22s %-16s %-10s %s\n",
					color.CyanString("%s/%s", rec.AppType, rec.SessionCode),
					rec.DisplayName, rec.Role, rec.SavedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "Drop expired participations first")
	return cmd
}
