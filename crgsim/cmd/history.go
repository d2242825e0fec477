package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/crg/recording"
)

func newHistoryCmd() *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "history <file>",
		Short: "Print the reset transitions stored by simulate --record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			db, err := sql.Open("sqlite3", args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := recording.ReadTransitions(cmd.Context(), db, domain)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tDOMAIN\tCYCLE\tFROM\tTO")

			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
					e.Time, e.Domain, e.Cycle, e.FromState, e.ToState)
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "",
		"Only print the transitions of this domain")

	return cmd
}
