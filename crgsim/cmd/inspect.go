package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/crg/board"
	"github.com/sarchlab/crg/crg"
)

func newBoardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List the built-in boards.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BOARD\tTOOLCHAIN\tSOURCES\tDOMAINS")

			for _, name := range board.Names() {
				cfg, err := board.Lookup(name)
				if err != nil {
					return err
				}

				sources := make([]string, 0, len(cfg.Sources))
				for _, s := range cfg.Sources {
					sources = append(sources, fmt.Sprintf("%s@%s", s.Name, s.Freq))
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, cfg.Platform.Toolchain,
					strings.Join(sources, ","), len(cfg.Domains))
			}

			return w.Flush()
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [board]",
		Short: "Plan the PLLs of a board and report shared pins.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadBoard(cmd, args)
			if err != nil {
				return err
			}

			c, err := crg.MakeBuilder().Build(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, c.Report())

			for _, conflict := range c.PinConflicts() {
				fmt.Fprintf(out, "warning: %s\n", conflict)
			}

			return nil
		},
	}
}

func newOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [board]",
		Short: "Print the domains of a board in reset release order.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadBoard(cmd, args)
			if err != nil {
				return err
			}

			c, err := crg.MakeBuilder().Build(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, name := range c.Order() {
				d, _ := c.Graph().Domain(name)

				note := strings.Join(c.Graph().Dependencies(name), ",")
				if d.ResetLess {
					note = "reset-less"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\n", name, d.Clock.Freq, note)
			}

			return w.Flush()
		},
	}
}
